package repository

import (
	"context"
	"fmt"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

// AttachmentRepository stores files attached to pathology records.
type AttachmentRepository struct {
	docs collection[models.MedicalRecordAttachment]
}

func (r *AttachmentRepository) Create(ctx context.Context, a *models.MedicalRecordAttachment) error {
	if err := r.docs.create(ctx, a); err != nil {
		return fmt.Errorf("creating attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) Get(ctx context.Context, id string) (*models.MedicalRecordAttachment, error) {
	return r.docs.get(ctx, id)
}

// ListByRecord returns the attachments of recordID in upload order.
func (r *AttachmentRepository) ListByRecord(ctx context.Context, recordID string) ([]models.MedicalRecordAttachment, error) {
	return r.docs.find(ctx, store.Where("recordId", recordID))
}

func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// DeleteByRecord removes every attachment of recordID.
func (r *AttachmentRepository) DeleteByRecord(ctx context.Context, recordID string) error {
	found, err := r.ListByRecord(ctx, recordID)
	if err != nil {
		return err
	}
	for _, a := range found {
		if err := r.docs.delete(ctx, a.ID); err != nil {
			return fmt.Errorf("deleting attachment %s: %w", a.ID, err)
		}
	}
	return nil
}
