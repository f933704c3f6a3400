package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pathology-records-server/internal/docpath"
)

// documentRow is the relational form of a Document: one row per
// (collection, id) with the nested data held in a JSON column.
// Seq records insertion order; created_at alone ties within its precision.
type documentRow struct {
	Seq        uint64         `gorm:"primaryKey;autoIncrement"`
	Collection string         `gorm:"size:64;not null;uniqueIndex:idx_documents_collection_id"`
	ID         string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_documents_collection_id"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// GormStore persists documents in a SQL database through GORM.
type GormStore struct {
	db *gorm.DB
}

// PoolConfig tunes the underlying sql.DB connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL connects to MySQL and migrates the documents table.
func OpenMySQL(dsn string, pool PoolConfig) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open GORM handle and migrates the documents table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrating documents table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, collection string, data map[string]any) (*Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	row := documentRow{
		Collection: collection,
		ID:         uuid.NewString(),
		Data:       datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return rowToDocument(&row)
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "collection = ? AND id = ?", collection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return rowToDocument(&row)
}

func (s *GormStore) Replace(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	var row documentRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "collection = ? AND id = ?", collection, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		row.Data = datatypes.JSON(raw)
		return tx.Save(&row).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("replacing %s/%s: %w", collection, id, err)
	}
	return rowToDocument(&row)
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).Delete(&documentRow{})
	if res.Error != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Find(ctx context.Context, collection string, q Query) ([]*Document, error) {
	tx := s.db.WithContext(ctx).Where("collection = ?", collection)
	for _, f := range q.Filters {
		keys, err := docpath.Split(f.Field)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", collection, err)
		}
		tx = tx.Where(datatypes.JSONQuery("data").Equals(normalizeValue(f.Value), keys...))
	}
	if q.Descending {
		tx = tx.Order("seq DESC")
	} else {
		tx = tx.Order("seq ASC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	out := make([]*Document, 0, len(rows))
	for i := range rows {
		doc, err := rowToDocument(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func rowToDocument(row *documentRow) (*Document, error) {
	data := map[string]any{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", row.Collection, row.ID, err)
		}
	}
	return &Document{
		ID:        row.ID,
		Data:      data,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}
