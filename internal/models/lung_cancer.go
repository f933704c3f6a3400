package models

import "time"

type LungCancerForm struct {
	Diagnosis     LungCancerDiagnosis `json:"diagnosis"`
	Smoking       SmokingHistory      `json:"smoking"`
	ECOG          int                 `json:"ecog" validate:"min=0,max=5"`
	Treatment     LungCancerTreatment `json:"treatment"`
	Response      string              `json:"response,omitempty" validate:"omitempty,oneof=complete partial stable progression not_evaluated"`
	AdverseEvents []AdverseEvent      `json:"adverseEvents,omitempty" validate:"dive"`
	Notes         string              `json:"notes,omitempty" validate:"max=4000"`
}

type LungCancerDiagnosis struct {
	DiagnosisDate time.Time  `json:"diagnosisDate" validate:"required"`
	Histology     string     `json:"histology" validate:"required,oneof=adenocarcinoma squamous_cell large_cell small_cell other"`
	T             string     `json:"t,omitempty" validate:"omitempty,oneof=TX T0 Tis T1 T2 T3 T4"`
	N             string     `json:"n,omitempty" validate:"omitempty,oneof=NX N0 N1 N2 N3"`
	M             string     `json:"m,omitempty" validate:"omitempty,oneof=M0 M1a M1b M1c"`
	Stage         string     `json:"stage" validate:"required,oneof=0 IA IB IIA IIB IIIA IIIB IIIC IVA IVB limited extensive"`
	Biomarkers    Biomarkers `json:"biomarkers"`
}

type Biomarkers struct {
	EGFR        string   `json:"egfr,omitempty" validate:"omitempty,oneof=positive negative not_tested"`
	ALK         string   `json:"alk,omitempty" validate:"omitempty,oneof=positive negative not_tested"`
	ROS1        string   `json:"ros1,omitempty" validate:"omitempty,oneof=positive negative not_tested"`
	PDL1Percent *float64 `json:"pdl1Percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type SmokingHistory struct {
	Status    string     `json:"status" validate:"required,oneof=never former current"`
	PackYears float64    `json:"packYears" validate:"gte=0,lte=300"`
	QuitDate  *time.Time `json:"quitDate,omitempty"`
}

type LungCancerTreatment struct {
	Modalities []string   `json:"modalities,omitempty" validate:"dive,oneof=surgery chemotherapy radiotherapy immunotherapy targeted_therapy palliative_care"`
	Regimen    string     `json:"regimen,omitempty" validate:"max=200"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	Cycle      int        `json:"cycle" validate:"min=0,max=100"`
}

type AdverseEvent struct {
	Term  string `json:"term" validate:"required,max=200"`
	Grade int    `json:"grade" validate:"required,min=1,max=5"`
}

func (f *LungCancerForm) CrossCheck() []string {
	var issues []string
	s := f.Smoking
	if s.Status == "never" && s.PackYears > 0 {
		issues = append(issues, "smoking.packYears: must be 0 for a never smoker")
	}
	if s.QuitDate != nil && s.Status != "former" {
		issues = append(issues, "smoking.quitDate: only applies to former smokers")
	}
	small := f.Diagnosis.Histology == "small_cell"
	limitedOrExtensive := f.Diagnosis.Stage == "limited" || f.Diagnosis.Stage == "extensive"
	if limitedOrExtensive && !small {
		issues = append(issues, "diagnosis.stage: limited/extensive staging only applies to small cell carcinoma")
	}
	if f.Treatment.StartDate != nil && f.Treatment.StartDate.Before(f.Diagnosis.DiagnosisDate) {
		issues = append(issues, "treatment.startDate: must not precede the diagnosis date")
	}
	return issues
}

func (f *LungCancerForm) Normalize() {
	if f.Smoking.Status == "never" {
		f.Smoking.PackYears = 0
	}
}
