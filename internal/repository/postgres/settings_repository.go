package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solitack2/sender-service/internal/domain"
)

// settingsRepository implements domain.SettingsRepository
type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) domain.SettingsRepository {
	return &settingsRepository{
		db: db,
	}
}

// Get retrieves one settings value; the second return reports presence
func (r *settingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var setting domain.Setting
	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, domain.ErrDatabaseOperation
	}
	return setting.Value, true, nil
}

// Set stores one settings value, overwriting any previous one
func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	setting := domain.Setting{Key: key, Value: value}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting)

	if result.Error != nil {
		return domain.ErrDatabaseOperation
	}
	return nil
}

// All retrieves the full settings table
func (r *settingsRepository) All(ctx context.Context) (map[string]string, error) {
	var settings []domain.Setting
	if result := r.db.WithContext(ctx).Find(&settings); result.Error != nil {
		return nil, domain.ErrDatabaseOperation
	}

	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}
