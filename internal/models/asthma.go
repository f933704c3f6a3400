package models

import "time"

// Asthma control levels derived from the Asthma Control Test score.
const (
	AsthmaWellControlled   = "well_controlled"
	AsthmaPartlyControlled = "partly_controlled"
	AsthmaPoorlyControlled = "poorly_controlled"
)

type AsthmaForm struct {
	Symptoms      AsthmaSymptoms  `json:"symptoms"`
	Triggers      []string        `json:"triggers,omitempty" validate:"dive,oneof=allergens exercise cold_air smoke infection stress occupational other"`
	Control       AsthmaControl   `json:"control"`
	Spirometry    *Spirometry     `json:"spirometry,omitempty"`
	Treatment     AsthmaTreatment `json:"treatment"`
	NextVisitDate *time.Time      `json:"nextVisitDate,omitempty"`
	Notes         string          `json:"notes,omitempty" validate:"max=4000"`
}

type AsthmaSymptoms struct {
	DaytimeFrequency        string `json:"daytimeFrequency" validate:"required,oneof=none weekly_or_less more_than_weekly daily continuous"`
	NightAwakeningsPerMonth int    `json:"nightAwakeningsPerMonth" validate:"min=0,max=31"`
	Wheezing                bool   `json:"wheezing"`
	Cough                   bool   `json:"cough"`
	Dyspnea                 bool   `json:"dyspnea"`
	ChestTightness          bool   `json:"chestTightness"`
}

type AsthmaControl struct {
	ACTScore                     int    `json:"actScore" validate:"required,min=5,max=25"`
	ExacerbationsLast12Months    int    `json:"exacerbationsLast12Months" validate:"min=0,max=52"`
	HospitalizationsLast12Months int    `json:"hospitalizationsLast12Months" validate:"min=0,max=52"`
	Level                        string `json:"level,omitempty"`
}

type Spirometry struct {
	FEV1Liters           float64 `json:"fev1Liters" validate:"gt=0,lte=10"`
	FEV1PercentPredicted float64 `json:"fev1PercentPredicted" validate:"gte=0,lte=200"`
	FVCLiters            float64 `json:"fvcLiters" validate:"gt=0,lte=12"`
	FEV1FVCRatio         float64 `json:"fev1FvcRatio" validate:"gte=0,lte=1"`
	ReversibilityPercent float64 `json:"reversibilityPercent" validate:"gte=-100,lte=100"`
}

type AsthmaTreatment struct {
	GINAStep                int          `json:"ginaStep" validate:"required,min=1,max=5"`
	Controllers             []Medication `json:"controllers,omitempty" validate:"dive"`
	Reliever                string       `json:"reliever,omitempty" validate:"max=200"`
	InhalerTechniqueChecked bool         `json:"inhalerTechniqueChecked"`
}

func (f *AsthmaForm) CrossCheck() []string {
	var issues []string
	if s := f.Spirometry; s != nil && s.FEV1Liters > s.FVCLiters {
		issues = append(issues, "spirometry.fev1Liters: must not exceed fvcLiters")
	}
	if f.Treatment.GINAStep >= 2 && len(f.Treatment.Controllers) == 0 {
		issues = append(issues, "treatment.controllers: GINA step 2 and above needs a controller")
	}
	return issues
}

func (f *AsthmaForm) Normalize() {
	switch score := f.Control.ACTScore; {
	case score >= 20:
		f.Control.Level = AsthmaWellControlled
	case score >= 16:
		f.Control.Level = AsthmaPartlyControlled
	default:
		f.Control.Level = AsthmaPoorlyControlled
	}
	if s := f.Spirometry; s != nil && s.FVCLiters > 0 {
		s.FEV1FVCRatio = round(s.FEV1Liters/s.FVCLiters, 2)
	}
}
