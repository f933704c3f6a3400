package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore persists documents in Cloud Firestore. createdAt and
// updatedAt are written into each document as native timestamps.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens a Firestore client for projectID. An empty
// credentialsFile falls back to application default credentials.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]any) (*Document, error) {
	now := time.Now().UTC()
	stored := copyMap(data)
	stored[KeyCreatedAt] = now
	stored[KeyUpdatedAt] = now

	ref := s.client.Collection(collection).Doc(uuid.NewString())
	if _, err := ref.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("creating %s document: %w", collection, err)
	}
	return storedToDocument(ref.ID, stored), nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return storedToDocument(snap.Ref.ID, snap.Data()), nil
}

func (s *FirestoreStore) Replace(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
	ref := s.client.Collection(collection).Doc(id)
	stored := copyMap(data)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		created, _ := snap.Data()[KeyCreatedAt].(time.Time)
		stored[KeyCreatedAt] = created
		stored[KeyUpdatedAt] = time.Now().UTC()
		return tx.Set(ref, stored)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replacing %s/%s: %w", collection, id, err)
	}
	return storedToDocument(id, stored), nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Find filters server side and orders client side, so equality queries do
// not need a composite index per filter combination.
func (s *FirestoreStore) Find(ctx context.Context, collection string, q Query) ([]*Document, error) {
	query := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, "==", normalizeValue(f.Value))
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	out := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, storedToDocument(snap.Ref.ID, snap.Data()))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if q.Descending {
				return a.ID > b.ID
			}
			return a.ID < b.ID
		}
		if q.Descending {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func storedToDocument(id string, stored map[string]any) *Document {
	data := copyMap(stored)
	created, _ := data[KeyCreatedAt].(time.Time)
	updated, _ := data[KeyUpdatedAt].(time.Time)
	delete(data, KeyCreatedAt)
	delete(data, KeyUpdatedAt)
	return &Document{
		ID:        id,
		Data:      data,
		CreatedAt: created.UTC(),
		UpdatedAt: updated.UTC(),
	}
}
