package postgres

import (
	"context"
	"errors"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func newPolicyStore(db *gorm.DB) *policyStore {
	return &policyStore{
		db: db,
	}
}

type policyStore struct {
	db *gorm.DB
}

func (s *policyStore) GetSetting(ctx context.Context, entityID string) (*models.AdmissionSetting, error) {
	var setting models.AdmissionSetting
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storage.Unavailable(err, "failed to read admission settings")
	}
	return &setting, nil
}

func (s *policyStore) SaveSetting(ctx context.Context, setting *models.AdmissionSetting) error {
	if err := s.db.WithContext(ctx).Save(setting).Error; err != nil {
		return storage.Unavailable(err, "failed to save admission settings")
	}
	return nil
}

func (s *policyStore) GetOverride(ctx context.Context, userID string) (*models.SessionLimitOverride, error) {
	var override models.SessionLimitOverride
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&override).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storage.Unavailable(err, "failed to read session limit override")
	}
	return &override, nil
}

func (s *policyStore) ListOverrides(ctx context.Context) ([]models.SessionLimitOverride, error) {
	var overrides []models.SessionLimitOverride
	if err := s.db.WithContext(ctx).Order("user_id").Find(&overrides).Error; err != nil {
		return nil, storage.Unavailable(err, "failed to list session limit overrides")
	}
	return overrides, nil
}

func (s *policyStore) SetOverride(ctx context.Context, o *models.SessionLimitOverride) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_sessions", "note", "updated_at"}),
	}).Create(o).Error
	if err != nil {
		return storage.Unavailable(err, "failed to set session limit override")
	}
	return nil
}

func (s *policyStore) DeleteOverride(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&models.SessionLimitOverride{}).Error; err != nil {
		return storage.Unavailable(err, "failed to delete session limit override")
	}
	return nil
}
