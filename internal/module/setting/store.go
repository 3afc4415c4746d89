package setting

import (
	"context"
	"errors"

	"github.com/simp-lee/attendance/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads settings from the settings table. It implements settings.Store.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Lookup returns the value of key. Settings without a value are reported as missing.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	var row domain.Setting
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, domain.NewAppError(domain.CodeInternal, "failed to read setting", err)
	}
	if row.Value == nil {
		return "", false, nil
	}
	return *row.Value, true, nil
}

// All returns every setting that has a value.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	var rows []domain.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to load settings", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.Value != nil {
			out[row.Key] = *row.Value
		}
	}
	return out, nil
}
