package models

import "time"

type TuberculosisForm struct {
	Diagnosis TBDiagnosis    `json:"diagnosis"`
	Treatment TBTreatment    `json:"treatment"`
	FollowUp  *TBFollowUp    `json:"followUp,omitempty"`
	Contacts  ContactTracing `json:"contacts"`
	Outcome   string         `json:"outcome,omitempty" validate:"omitempty,oneof=cured treatment_completed treatment_failed died lost_to_follow_up not_evaluated"`
	Notes     string         `json:"notes,omitempty" validate:"max=4000"`
}

type TBDiagnosis struct {
	DiagnosisDate  time.Time    `json:"diagnosisDate" validate:"required"`
	Site           string       `json:"site" validate:"required,oneof=pulmonary extrapulmonary both"`
	CaseType       string       `json:"caseType" validate:"required,oneof=new relapse treatment_after_failure return_after_loss other"`
	Bacteriology   Bacteriology `json:"bacteriology"`
	DrugResistance string       `json:"drugResistance" validate:"required,oneof=none mono poly mdr xdr unknown"`
	HIVStatus      string       `json:"hivStatus" validate:"required,oneof=positive negative unknown"`
}

type Bacteriology struct {
	Smear     string `json:"smear,omitempty" validate:"omitempty,oneof=negative scanty 1+ 2+ 3+ not_done"`
	Culture   string `json:"culture,omitempty" validate:"omitempty,oneof=positive negative pending not_done"`
	GeneXpert string `json:"geneXpert,omitempty" validate:"omitempty,oneof=mtb_detected_rif_sensitive mtb_detected_rif_resistant mtb_not_detected not_done"`
}

type TBTreatment struct {
	Regimen     string    `json:"regimen" validate:"required,max=100"`
	Phase       string    `json:"phase" validate:"required,oneof=intensive continuation completed"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	DOTObserved bool      `json:"dotObserved"`
	MissedDoses int       `json:"missedDoses" validate:"min=0,max=365"`
}

type TBFollowUp struct {
	WeightKg         float64  `json:"weightKg,omitempty" validate:"omitempty,gt=0,lte=400"`
	SputumConversion bool     `json:"sputumConversion"`
	SideEffects      []string `json:"sideEffects,omitempty" validate:"dive,oneof=hepatotoxicity peripheral_neuropathy rash gastrointestinal visual_disturbance joint_pain other"`
}

type ContactTracing struct {
	Identified int `json:"identified" validate:"min=0"`
	Screened   int `json:"screened" validate:"min=0,ltefield=Identified"`
}

func (f *TuberculosisForm) CrossCheck() []string {
	var issues []string
	d := f.Diagnosis
	if d.Bacteriology.GeneXpert == "mtb_detected_rif_resistant" && (d.DrugResistance == "none" || d.DrugResistance == "unknown") {
		issues = append(issues, "diagnosis.drugResistance: rifampicin resistance was detected")
	}
	if f.Treatment.StartDate.Before(d.DiagnosisDate) {
		issues = append(issues, "treatment.startDate: must not precede the diagnosis date")
	}
	if (f.Outcome == "cured" || f.Outcome == "treatment_completed") && f.Treatment.Phase != "completed" {
		issues = append(issues, "outcome: cured or completed needs the treatment phase to be completed")
	}
	return issues
}

func (f *TuberculosisForm) Normalize() {}
