package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pathology-records-server/internal/docpath"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "documents.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	s, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("NewGormStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStoreCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupGormStore(t)

	created, err := s.Create(ctx, CollectionPatients, map[string]any{
		"lastName": "Okafor",
		"contact":  map[string]any{"phone": "555-0100"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and creation time, got %+v", created)
	}

	got, err := s.Get(ctx, CollectionPatients, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if phone := got.Data["contact"].(map[string]any)["phone"]; phone != "555-0100" {
		t.Errorf("unexpected nested value %v", phone)
	}

	t.Run("replace keeps creation time", func(t *testing.T) {
		replaced, err := s.Replace(ctx, CollectionPatients, created.ID, map[string]any{"lastName": "Mensah"})
		if err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		if !replaced.CreatedAt.Truncate(time.Millisecond).Equal(created.CreatedAt.Truncate(time.Millisecond)) {
			t.Errorf("CreatedAt changed from %v to %v", created.CreatedAt, replaced.CreatedAt)
		}
		if _, ok := replaced.Data["contact"]; ok {
			t.Error("replace should drop fields absent from the new data")
		}
		if replaced.Data["lastName"] != "Mensah" {
			t.Errorf("unexpected data after replace: %v", replaced.Data)
		}
	})

	t.Run("missing documents", func(t *testing.T) {
		if _, err := s.Get(ctx, CollectionPatients, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := s.Replace(ctx, CollectionPatients, "nope", map[string]any{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Replace: expected ErrNotFound, got %v", err)
		}
		if err := s.Delete(ctx, CollectionRecords, created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete in wrong collection: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, CollectionPatients, created.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, CollectionPatients, created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestGormStoreFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupGormStore(t)

	// Created back to back, so several rows share a created_at value.
	seed := []map[string]any{
		{"patientId": "p1", "pathology": "asthma", "isRevoked": false, "form": map[string]any{"kind": "intake"}},
		{"patientId": "p1", "pathology": "tuberculosis", "isRevoked": false, "form": map[string]any{"kind": "intake"}},
		{"patientId": "p1", "pathology": "asthma", "isRevoked": true, "form": map[string]any{"kind": "follow_up"}},
		{"patientId": "p2", "pathology": "asthma", "isRevoked": false, "form": map[string]any{"kind": "intake"}},
	}
	var ids []string
	for _, data := range seed {
		doc, err := s.Create(ctx, CollectionRecords, data)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	if _, err := s.Create(ctx, CollectionPatients, map[string]any{"patientId": "p1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("filters and orders oldest first", func(t *testing.T) {
		docs, err := s.Find(ctx, CollectionRecords, Where("patientId", "p1").And("pathology", pathologyName("asthma")))
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != ids[0] || docs[1].ID != ids[2] {
			t.Errorf("unexpected result order: %v", docIDs(docs))
		}
	})

	t.Run("nested field filter", func(t *testing.T) {
		docs, err := s.Find(ctx, CollectionRecords, Where("form.kind", "follow_up"))
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != ids[2] {
			t.Errorf("expected only the follow-up, got %v", docIDs(docs))
		}
	})

	t.Run("bool filter", func(t *testing.T) {
		docs, err := s.Find(ctx, CollectionRecords, Where("patientId", "p1").And("isRevoked", false))
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != ids[0] || docs[1].ID != ids[1] {
			t.Errorf("unexpected bool filter result: %v", docIDs(docs))
		}
	})

	t.Run("insertion order survives equal timestamps", func(t *testing.T) {
		docs, err := s.Find(ctx, CollectionRecords, Query{})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if got := docIDs(docs); len(got) != len(ids) {
			t.Fatalf("expected %d records, got %v", len(ids), got)
		}
		for i, doc := range docs {
			if doc.ID != ids[i] {
				t.Fatalf("position %d: got %s, want %s", i, doc.ID, ids[i])
			}
		}
	})

	t.Run("descending with limit", func(t *testing.T) {
		docs, err := s.Find(ctx, CollectionRecords, Query{Descending: true, Limit: 2})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != ids[3] || docs[1].ID != ids[2] {
			t.Errorf("unexpected newest-first page: %v", docIDs(docs))
		}
	})

	t.Run("unknown collection is empty", func(t *testing.T) {
		docs, err := s.Find(ctx, "unknown", Query{})
		if err != nil || len(docs) != 0 {
			t.Errorf("expected empty result, got %v (%v)", docIDs(docs), err)
		}
	})

	t.Run("invalid field path", func(t *testing.T) {
		if _, err := s.Find(ctx, CollectionRecords, Where("form..kind", "intake")); !errors.Is(err, docpath.ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})
}
