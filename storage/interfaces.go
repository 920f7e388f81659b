package storage

import (
	"context"
	"time"

	"github.com/Krish-Depani/session-admission/models"
)

// Interface is implemented by the storage
type Interface interface {
	Sessions() SessionStore
	Policies() PolicyStore
	Close() error
}

// UserSessions groups the live rows of one user.
type UserSessions struct {
	UserID   string
	Sessions []models.ActiveSession
}

// SessionStore is responsible for the ActiveSession table. Every cutoff
// argument is a snapshot: rows with LastActivity < cutoff are dead.
type SessionStore interface {
	// Transact runs fn as a single atomic admission unit. Concurrent
	// units never interleave, so a count observed inside fn is still
	// true when fn writes.
	Transact(ctx context.Context, fn func(tx SessionTx) error) error

	// Touch moves LastActivity forward to now for a live row. It never
	// moves it backwards and reports false when no live row exists.
	Touch(ctx context.Context, userID, instanceID string, now, cutoff time.Time) (bool, error)
	Delete(ctx context.Context, userID, instanceID string) (bool, error)
	DeleteUser(ctx context.Context, userID string) ([]models.ActiveSession, error)
	Reap(ctx context.Context, cutoff time.Time) ([]models.ActiveSession, error)

	// CountLive counts live rows of a user; an empty instanceID counts
	// every instance.
	CountLive(ctx context.Context, userID, instanceID string, cutoff time.Time) (int64, error)
	CountLiveUsers(ctx context.Context, cutoff time.Time) (int64, error)
	CountLiveSessions(ctx context.Context, cutoff time.Time) (int64, error)
	ListLiveUsers(ctx context.Context, cutoff time.Time, offset, limit int) ([]UserSessions, int64, error)
}

// SessionTx is the view of the store inside an admission unit.
type SessionTx interface {
	// Find returns ErrNotFound when the pair has no row, live or dead.
	Find(userID, instanceID string) (*models.ActiveSession, error)
	ListLive(userID string, cutoff time.Time) ([]models.ActiveSession, error)
	CountLiveUsers(cutoff time.Time) (int64, error)
	ReapUser(userID string, cutoff time.Time) ([]models.ActiveSession, error)
	// Upsert inserts the row or updates it in place, keeping the larger
	// LastActivity of the two.
	Upsert(s *models.ActiveSession) error
	Delete(userID, instanceID string) (bool, error)
}

// PolicyStore reads and writes admission configuration. Absent rows are
// returned as nil without an error.
type PolicyStore interface {
	GetSetting(ctx context.Context, entityID string) (*models.AdmissionSetting, error)
	SaveSetting(ctx context.Context, s *models.AdmissionSetting) error
	GetOverride(ctx context.Context, userID string) (*models.SessionLimitOverride, error)
	ListOverrides(ctx context.Context) ([]models.SessionLimitOverride, error)
	SetOverride(ctx context.Context, o *models.SessionLimitOverride) error
	DeleteOverride(ctx context.Context, userID string) error
}
