package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Krish-Depani/session-admission/models"
)

type policyStore struct {
	settings  map[string]models.AdmissionSetting
	overrides map[string]models.SessionLimitOverride
	sync.RWMutex
}

func newPolicyStore() *policyStore {
	return &policyStore{
		settings:  make(map[string]models.AdmissionSetting),
		overrides: make(map[string]models.SessionLimitOverride),
	}
}

func (s *policyStore) GetSetting(ctx context.Context, entityID string) (*models.AdmissionSetting, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.settings[entityID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *policyStore) SaveSetting(ctx context.Context, m *models.AdmissionSetting) error {
	s.Lock()
	defer s.Unlock()
	m.UpdatedAt = time.Now().UTC()
	s.settings[m.EntityID] = *m
	return nil
}

func (s *policyStore) GetOverride(ctx context.Context, userID string) (*models.SessionLimitOverride, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.overrides[userID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *policyStore) ListOverrides(ctx context.Context) ([]models.SessionLimitOverride, error) {
	s.RLock()
	defer s.RUnlock()
	out := make([]models.SessionLimitOverride, 0, len(s.overrides))
	for _, m := range s.overrides {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *policyStore) SetOverride(ctx context.Context, m *models.SessionLimitOverride) error {
	s.Lock()
	defer s.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.overrides[m.UserID]; ok {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.overrides[m.UserID] = *m
	return nil
}

func (s *policyStore) DeleteOverride(ctx context.Context, userID string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.overrides, userID)
	return nil
}
