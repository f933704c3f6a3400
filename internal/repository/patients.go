package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

// PatientFilter narrows List. Zero fields are ignored.
type PatientFilter struct {
	LastName string
	MRN      string
}

// PatientRepository stores patient files. Medical record numbers are unique.
type PatientRepository struct {
	docs    collection[models.Patient]
	records *RecordRepository
}

// Create returns ErrDuplicateMRN when the record number is taken.
func (r *PatientRepository) Create(ctx context.Context, p *models.Patient) error {
	p.MedicalRecordNumber = strings.TrimSpace(p.MedicalRecordNumber)
	if err := r.ensureMRNFree(ctx, p.MedicalRecordNumber, ""); err != nil {
		return err
	}
	if err := r.docs.create(ctx, p); err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) Get(ctx context.Context, id string) (*models.Patient, error) {
	return r.docs.get(ctx, id)
}

// GetByUserID finds the file linked to a patient account.
func (r *PatientRepository) GetByUserID(ctx context.Context, userID string) (*models.Patient, error) {
	return r.docs.first(ctx, store.Where("userId", userID))
}

func (r *PatientRepository) List(ctx context.Context, f PatientFilter) ([]models.Patient, error) {
	var q store.Query
	if f.LastName != "" {
		q = q.And("lastName", f.LastName)
	}
	if f.MRN != "" {
		q = q.And("medicalRecordNumber", strings.TrimSpace(f.MRN))
	}
	return r.docs.find(ctx, q)
}

func (r *PatientRepository) Update(ctx context.Context, p *models.Patient) error {
	p.MedicalRecordNumber = strings.TrimSpace(p.MedicalRecordNumber)
	if err := r.ensureMRNFree(ctx, p.MedicalRecordNumber, p.ID); err != nil {
		return err
	}
	return r.docs.replace(ctx, p.ID, p)
}

// Delete refuses with ErrPatientHasRecords while records reference the patient.
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.docs.get(ctx, id); err != nil {
		return err
	}
	has, err := r.records.HasRecords(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return ErrPatientHasRecords
	}
	return r.docs.delete(ctx, id)
}

func (r *PatientRepository) ensureMRNFree(ctx context.Context, mrn, exceptID string) error {
	existing, err := r.docs.first(ctx, store.Where("medicalRecordNumber", mrn))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("checking medical record number: %w", err)
	case existing.ID != exceptID:
		return ErrDuplicateMRN
	}
	return nil
}
