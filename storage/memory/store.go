package memory

import (
	"github.com/Krish-Depani/session-admission/storage"
)

type store struct {
	sessions *sessionStore
	policies *policyStore
}

// NewStore creates an in-memory Storage interface. It is meant for a
// single process and for tests; nothing survives a restart.
func NewStore() storage.Interface {
	return &store{
		sessions: newSessionStore(),
		policies: newPolicyStore(),
	}
}

func (s *store) Sessions() storage.SessionStore {
	return s.sessions
}

func (s *store) Policies() storage.PolicyStore {
	return s.policies
}

func (s *store) Close() error {
	return nil
}
