package repository

import (
	"context"
	"errors"
	"fmt"

	"pathology-records-server/internal/forms"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

// RecordFilter narrows ListByPatient. Zero fields are ignored.
type RecordFilter struct {
	Pathology models.Pathology
	Kind      models.RecordKind
}

// RecordRepository stores pathology records. The date fields of each
// pathology's form are kept as native timestamps.
type RecordRepository struct {
	store       store.Store
	attachments *AttachmentRepository
}

// docs returns a collection view whose converter knows the timestamp
// paths of p's form.
func (r *RecordRepository) docs(p models.Pathology) (collection[models.PathologyRecord], error) {
	paths := []string{"visitDate"}
	if p != "" {
		def, err := forms.Lookup(p)
		if err != nil {
			return collection[models.PathologyRecord]{}, err
		}
		for _, path := range def.TimestampPaths() {
			paths = append(paths, "form."+path)
		}
	}
	return newCollection[models.PathologyRecord](r.store, store.CollectionRecords, paths...), nil
}

// Create stores rec. A follow-up is linked to the patient's latest intake
// for the same pathology; without one Create returns ErrIntakeRequired.
func (r *RecordRepository) Create(ctx context.Context, rec *models.PathologyRecord) error {
	docs, err := r.docs(rec.Pathology)
	if err != nil {
		return err
	}

	rec.IntakeID = ""
	if rec.Kind == models.KindFollowUp {
		intake, err := r.LatestIntake(ctx, rec.PatientID, rec.Pathology)
		if errors.Is(err, store.ErrNotFound) {
			return ErrIntakeRequired
		}
		if err != nil {
			return fmt.Errorf("finding intake: %w", err)
		}
		rec.IntakeID = intake.ID
	}

	if err := docs.create(ctx, rec); err != nil {
		return fmt.Errorf("creating record: %w", err)
	}
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, id string) (*models.PathologyRecord, error) {
	docs, _ := r.docs("")
	return docs.get(ctx, id)
}

// LatestIntake returns the newest intake of patientID for p.
func (r *RecordRepository) LatestIntake(ctx context.Context, patientID string, p models.Pathology) (*models.PathologyRecord, error) {
	docs, _ := r.docs("")
	q := store.Where("patientId", patientID).
		And("pathology", p).
		And("kind", models.KindIntake)
	q.Descending = true
	return docs.first(ctx, q)
}

// ListByPatient returns the patient's records, newest first.
func (r *RecordRepository) ListByPatient(ctx context.Context, patientID string, f RecordFilter) ([]models.PathologyRecord, error) {
	docs, _ := r.docs("")
	q := store.Where("patientId", patientID)
	if f.Pathology != "" {
		q = q.And("pathology", f.Pathology)
	}
	if f.Kind != "" {
		q = q.And("kind", f.Kind)
	}
	q.Descending = true
	return docs.find(ctx, q)
}

// HasRecords reports whether any record references patientID.
func (r *RecordRepository) HasRecords(ctx context.Context, patientID string) (bool, error) {
	docs, _ := r.docs("")
	_, err := docs.first(ctx, store.Where("patientId", patientID))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Update replaces rec. Patient, pathology, kind and intake link are kept
// from the stored record.
func (r *RecordRepository) Update(ctx context.Context, rec *models.PathologyRecord) error {
	current, err := r.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	rec.PatientID = current.PatientID
	rec.Pathology = current.Pathology
	rec.Kind = current.Kind
	rec.IntakeID = current.IntakeID
	rec.AuthorID = current.AuthorID

	docs, err := r.docs(rec.Pathology)
	if err != nil {
		return err
	}
	return docs.replace(ctx, rec.ID, rec)
}

// Delete removes the record and its attachments. An intake that follow-ups
// point at cannot be deleted.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Kind == models.KindIntake {
		docs, _ := r.docs("")
		_, err := docs.first(ctx, store.Where("intakeId", id))
		if err == nil {
			return ErrIntakeHasFollowUps
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if err := r.attachments.DeleteByRecord(ctx, id); err != nil {
		return err
	}
	docs, _ := r.docs("")
	return docs.delete(ctx, id)
}
