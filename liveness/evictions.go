package liveness

import (
	"context"
	"sync"
	"time"
)

// EvictionLedger remembers displaced instances for one timeout window so
// the validator can tell "displaced" from "expired".
// *database.RedisClient implements it.
type EvictionLedger interface {
	MarkEvicted(ctx context.Context, userID, instanceID string, ttl time.Duration) error
	IsEvicted(ctx context.Context, userID, instanceID string) (bool, error)
	ClearEvicted(ctx context.Context, userID, instanceID string) error
}

type memoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryLedger keeps marks in process memory.
func NewMemoryLedger() EvictionLedger {
	return &memoryLedger{entries: make(map[string]time.Time), now: time.Now}
}

func ledgerKey(userID, instanceID string) string {
	return userID + "\x00" + instanceID
}

func (l *memoryLedger) MarkEvicted(ctx context.Context, userID, instanceID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.entries {
		if !exp.After(now) {
			delete(l.entries, k)
		}
	}
	l.entries[ledgerKey(userID, instanceID)] = now.Add(ttl)
	return nil
}

func (l *memoryLedger) IsEvicted(ctx context.Context, userID, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.entries[ledgerKey(userID, instanceID)]
	return ok && exp.After(l.now()), nil
}

func (l *memoryLedger) ClearEvicted(ctx context.Context, userID, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ledgerKey(userID, instanceID))
	return nil
}
