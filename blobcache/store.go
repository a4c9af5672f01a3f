package blobcache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DBName is the name of the durable image database.
	DBName = "ImageCache"
	// SchemaVersion is recorded in sqlite's user_version pragma.
	SchemaVersion = 1
)

// ErrNotFound is returned by Store.Get when no record exists for a URL.
var ErrNotFound = errors.New("blobcache: record not found")

// Record is one durable blob, keyed by the resource URL.
// Timestamp is the store time in Unix milliseconds.
type Record struct {
	URL       string `gorm:"column:url;primaryKey"`
	Blob      []byte `gorm:"column:blob;not null"`
	Timestamp int64  `gorm:"column:timestamp;not null;index:idx_images_timestamp"`
}

// TableName pins the record store name.
func (Record) TableName() string { return "images" }

// Store is the durable tier of the blob cache.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, url string) (Record, error)
	Delete(ctx context.Context, url string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Size(ctx context.Context) (int64, error)
}

// SQLStore keeps records in the images table of a gorm database.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates or upgrades the images schema. Safe to call on every open.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	var version int
	if err := db.Raw("PRAGMA user_version").Scan(&version).Error; err != nil {
		return nil, fmt.Errorf("read %s schema version: %w", DBName, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate %s.images: %w", DBName, err)
	}
	if version < SchemaVersion {
		if err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)).Error; err != nil {
			return nil, fmt.Errorf("set %s schema version: %w", DBName, err)
		}
	}
	return &SQLStore{db: db}, nil
}

// Version returns the schema version recorded in the database.
func (s *SQLStore) Version(ctx context.Context) (int, error) {
	var v int
	err := s.db.WithContext(ctx).Raw("PRAGMA user_version").Scan(&v).Error
	return v, err
}

func (s *SQLStore) Put(ctx context.Context, rec Record) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "timestamp"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put %q: %w", rec.URL, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, url string) (Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("url = ?", url).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", url, err)
	}
	return rec, nil
}

func (s *SQLStore) Delete(ctx context.Context, url string) error {
	if err := s.db.WithContext(ctx).Where("url = ?", url).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("delete %q: %w", url, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("clear images: %w", err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Select("COALESCE(SUM(LENGTH(blob)), 0)").Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("size images: %w", err)
	}
	return n, nil
}

var _ Store = (*SQLStore)(nil)
