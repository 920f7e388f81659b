package postgres

import (
	"github.com/Krish-Depani/session-admission/storage"
	"gorm.io/gorm"
)

// store contains all PostgreSQL based sub-stores
type store struct {
	db       *gorm.DB
	sessions *sessionStore
	policies *policyStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *gorm.DB) storage.Interface {
	return &store{
		db:       db,
		sessions: newSessionStore(db),
		policies: newPolicyStore(db),
	}
}

func (s *store) Sessions() storage.SessionStore {
	return s.sessions
}

func (s *store) Policies() storage.PolicyStore {
	return s.policies
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
