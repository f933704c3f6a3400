package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrUnknownPathology is returned for pathologies without a form.
var ErrUnknownPathology = errors.New("unknown pathology")

// Form is a pathology-specific clinical form.
type Form interface {
	// CrossCheck reports rules spanning several fields.
	CrossCheck() []string
	// Normalize fills derived fields such as scores and classifications.
	Normalize()
}

// NewForm returns an empty form for p.
func NewForm(p Pathology) (Form, error) {
	switch p {
	case PathologyAsthma:
		return &AsthmaForm{}, nil
	case PathologyLungCancer:
		return &LungCancerForm{}, nil
	case PathologySleepApnea:
		return &SleepApneaForm{}, nil
	case PathologyTuberculosis:
		return &TuberculosisForm{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPathology, p)
	}
}

// DecodeForm strictly decodes raw into p's form, validates it and fills
// derived fields. Unknown fields are rejected.
func DecodeForm(p Pathology, raw json.RawMessage) (Form, error) {
	form, err := NewForm(p)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Fields: []string{"form: is required"}}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(form); err != nil {
		return nil, &ValidationError{Fields: []string{"form: " + err.Error()}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Fields: []string{"form: unexpected data after the form object"}}
	}

	var fields []string
	if err := Validate(form, "form"); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		fields = append(fields, verr.Fields...)
	}
	for _, issue := range form.CrossCheck() {
		fields = append(fields, "form."+issue)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	form.Normalize()
	return form, nil
}

// EncodeForm renders a form back to JSON.
func EncodeForm(f Form) (json.RawMessage, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding form: %w", err)
	}
	return raw, nil
}

// Medication is a drug entry on a treatment plan.
type Medication struct {
	Name      string `json:"name" validate:"required,max=200"`
	Dose      string `json:"dose,omitempty" validate:"max=100"`
	Frequency string `json:"frequency,omitempty" validate:"max=100"`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
