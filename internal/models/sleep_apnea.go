package models

import "time"

// Sleep apnea severity derived from the apnea-hypopnea index.
const (
	ApneaSeverityNone     = "none"
	ApneaSeverityMild     = "mild"
	ApneaSeverityModerate = "moderate"
	ApneaSeveritySevere   = "severe"
)

type SleepApneaForm struct {
	Screening       ApneaScreening  `json:"screening"`
	Anthropometrics Anthropometrics `json:"anthropometrics"`
	SleepStudy      *SleepStudy     `json:"sleepStudy,omitempty"`
	Treatment       ApneaTreatment  `json:"treatment"`
	Notes           string          `json:"notes,omitempty" validate:"max=4000"`
}

type ApneaScreening struct {
	StopBang        int  `json:"stopBang" validate:"min=0,max=8"`
	Epworth         int  `json:"epworth" validate:"min=0,max=24"`
	Snoring         bool `json:"snoring"`
	WitnessedApneas bool `json:"witnessedApneas"`
}

type Anthropometrics struct {
	WeightKg            float64 `json:"weightKg,omitempty" validate:"omitempty,gt=0,lte=400"`
	HeightCm            float64 `json:"heightCm,omitempty" validate:"omitempty,gt=0,lte=250"`
	NeckCircumferenceCm float64 `json:"neckCircumferenceCm,omitempty" validate:"omitempty,gt=0,lte=80"`
	BMI                 float64 `json:"bmi,omitempty"`
}

type SleepStudy struct {
	StudyDate          time.Time `json:"studyDate" validate:"required"`
	Type               string    `json:"type" validate:"required,oneof=polysomnography home_sleep_apnea_test"`
	AHI                float64   `json:"ahi" validate:"gte=0,lte=200"`
	OxygenNadirPercent float64   `json:"oxygenNadirPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	T90Percent         float64   `json:"t90Percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Severity           string    `json:"severity,omitempty"`
}

type ApneaTreatment struct {
	CPAP                   bool    `json:"cpap"`
	PressureCmH2O          float64 `json:"pressureCmH2O,omitempty" validate:"omitempty,gte=4,lte=20"`
	AdherenceHoursPerNight float64 `json:"adherenceHoursPerNight,omitempty" validate:"omitempty,gte=0,lte=24"`
	UsagePercentNights     float64 `json:"usagePercentNights,omitempty" validate:"omitempty,gte=0,lte=100"`
	MandibularDevice       bool    `json:"mandibularDevice"`
	Surgery                bool    `json:"surgery"`
}

func (f *SleepApneaForm) CrossCheck() []string {
	var issues []string
	t := f.Treatment
	if !t.CPAP && (t.PressureCmH2O > 0 || t.AdherenceHoursPerNight > 0 || t.UsagePercentNights > 0) {
		issues = append(issues, "treatment.cpap: pressure and adherence need CPAP therapy")
	}
	return issues
}

func (f *SleepApneaForm) Normalize() {
	a := &f.Anthropometrics
	if a.WeightKg > 0 && a.HeightCm > 0 {
		m := a.HeightCm / 100
		a.BMI = round(a.WeightKg/(m*m), 1)
	} else {
		a.BMI = 0
	}
	if s := f.SleepStudy; s != nil {
		s.Severity = ApneaSeverity(s.AHI)
	}
}

// ApneaSeverity classifies an apnea-hypopnea index (events per hour).
func ApneaSeverity(ahi float64) string {
	switch {
	case ahi < 5:
		return ApneaSeverityNone
	case ahi < 15:
		return ApneaSeverityMild
	case ahi < 30:
		return ApneaSeverityModerate
	default:
		return ApneaSeveritySevere
	}
}
