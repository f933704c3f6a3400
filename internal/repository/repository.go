// Package repository maps the application models onto document store
// collections and enforces the cross-document rules the store cannot:
// unique emails and medical record numbers, the intake/follow-up chain,
// and cascading deletes.
package repository

import (
	"context"
	"errors"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/store"
)

var (
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrDuplicateMRN       = errors.New("medical record number is already assigned")
	ErrPatientHasRecords  = errors.New("patient still has pathology records")
	ErrIntakeRequired     = errors.New("a follow-up requires an intake record for the same pathology")
	ErrIntakeHasFollowUps = errors.New("intake record still has follow-ups")
)

// Repositories bundles the per-collection repositories over one store.
type Repositories struct {
	Users         *UserRepository
	RefreshTokens *RefreshTokenRepository
	Patients      *PatientRepository
	Records       *RecordRepository
	Attachments   *AttachmentRepository
}

// New wires every repository to s.
func New(s store.Store) *Repositories {
	attachmentDocs := newCollection[models.MedicalRecordAttachment](s, store.CollectionAttachments)
	attachmentDocs.conv.BytesPaths = []string{"fileData"}
	attachments := &AttachmentRepository{docs: attachmentDocs}
	records := &RecordRepository{store: s, attachments: attachments}
	return &Repositories{
		Users:         &UserRepository{docs: newCollection[models.User](s, store.CollectionUsers, "lastLoginAt")},
		RefreshTokens: &RefreshTokenRepository{docs: newCollection[models.RefreshToken](s, store.CollectionRefreshTokens, "expiresAt")},
		Patients:      &PatientRepository{docs: newCollection[models.Patient](s, store.CollectionPatients, "birthDate"), records: records},
		Records:       records,
		Attachments:   attachments,
	}
}

// collection is a typed view of one store collection.
type collection[T any] struct {
	store store.Store
	name  string
	conv  store.Converter[T]
}

func newCollection[T any](s store.Store, name string, timestampPaths ...string) collection[T] {
	return collection[T]{store: s, name: name, conv: store.Converter[T]{TimestampPaths: timestampPaths}}
}

// create stores v and refreshes it with the assigned id and timestamps.
func (c collection[T]) create(ctx context.Context, v *T) error {
	data, err := c.conv.ToData(*v)
	if err != nil {
		return err
	}
	doc, err := c.store.Create(ctx, c.name, data)
	if err != nil {
		return err
	}
	return c.decodeInto(doc, v)
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	v, err := c.conv.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c collection[T]) replace(ctx context.Context, id string, v *T) error {
	data, err := c.conv.ToData(*v)
	if err != nil {
		return err
	}
	doc, err := c.store.Replace(ctx, c.name, id, data)
	if err != nil {
		return err
	}
	return c.decodeInto(doc, v)
}

func (c collection[T]) delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

func (c collection[T]) find(ctx context.Context, q store.Query) ([]T, error) {
	docs, err := c.store.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	return c.conv.FromDocuments(docs)
}

// first returns the first match of q, or store.ErrNotFound.
func (c collection[T]) first(ctx context.Context, q store.Query) (*T, error) {
	q.Limit = 1
	found, err := c.find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return &found[0], nil
}

func (c collection[T]) decodeInto(doc *store.Document, v *T) error {
	out, err := c.conv.FromDocument(doc)
	if err != nil {
		return err
	}
	*v = out
	return nil
}
