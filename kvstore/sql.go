package kvstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// localItem is one row of the durable key/value table.
type localItem struct {
	Key   string `gorm:"column:item_key;primaryKey"`
	Value string `gorm:"column:item_value;not null"`
}

func (localItem) TableName() string { return "local_storage" }

// SQL is a durable Storage backed by a gorm database (sqlite in practice).
// It survives process restarts and backs the local-scoped cache.
type SQL struct {
	db *gorm.DB
}

// NewSQL migrates the local_storage table and returns the storage.
// Migration is idempotent.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&localItem{}); err != nil {
		return nil, fmt.Errorf("migrate local_storage: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) GetItem(ctx context.Context, key string) (string, error) {
	var it localItem
	err := s.db.WithContext(ctx).Where("item_key = ?", key).Take(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return it.Value, nil
}

func (s *SQL) SetItem(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_value"}),
	}).Create(&localItem{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQL) RemoveItem(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("item_key = ?", key).Delete(&localItem{}).Error; err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&localItem{}).Error; err != nil {
		return fmt.Errorf("clear local_storage: %w", err)
	}
	return nil
}

func (s *SQL) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&localItem{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count local_storage: %w", err)
	}
	return int(n), nil
}

var _ Storage = (*SQL)(nil)
