package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
)

type key struct {
	userID     string
	instanceID string
}

type sessionStore struct {
	store  map[key]models.ActiveSession
	nextID uint
	sync.Mutex
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		store:  make(map[key]models.ActiveSession),
		nextID: 1,
	}
}

// Transact holds the store lock for the whole of fn.
func (s *sessionStore) Transact(ctx context.Context, fn func(tx storage.SessionTx) error) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable(err, "admission aborted")
	}
	s.Lock()
	defer s.Unlock()

	// Rows written by a failed unit are rolled back.
	snapshot := make(map[key]models.ActiveSession, len(s.store))
	for k, v := range s.store {
		snapshot[k] = v
	}
	if err := fn(&sessionTx{s: s}); err != nil {
		s.store = snapshot
		return err
	}
	return nil
}

func (s *sessionStore) Touch(ctx context.Context, userID, instanceID string, now, cutoff time.Time) (bool, error) {
	s.Lock()
	defer s.Unlock()

	k := key{userID, instanceID}
	m, ok := s.store[k]
	if !ok || m.LastActivity.Before(cutoff) {
		return false, nil
	}
	if now.After(m.LastActivity) {
		m.LastActivity = now
		s.store[k] = m
	}
	return true, nil
}

func (s *sessionStore) Delete(ctx context.Context, userID, instanceID string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	return s.delete(userID, instanceID), nil
}

func (s *sessionStore) DeleteUser(ctx context.Context, userID string) ([]models.ActiveSession, error) {
	s.Lock()
	defer s.Unlock()

	return s.deleteWhere(func(m models.ActiveSession) bool { return m.UserID == userID }), nil
}

func (s *sessionStore) Reap(ctx context.Context, cutoff time.Time) ([]models.ActiveSession, error) {
	s.Lock()
	defer s.Unlock()

	return s.deleteWhere(func(m models.ActiveSession) bool { return m.LastActivity.Before(cutoff) }), nil
}

func (s *sessionStore) CountLive(ctx context.Context, userID, instanceID string, cutoff time.Time) (int64, error) {
	s.Lock()
	defer s.Unlock()

	var count int64
	for k, m := range s.store {
		if k.userID != userID || m.LastActivity.Before(cutoff) {
			continue
		}
		if instanceID != "" && k.instanceID != instanceID {
			continue
		}
		count++
	}
	return count, nil
}

func (s *sessionStore) CountLiveUsers(ctx context.Context, cutoff time.Time) (int64, error) {
	s.Lock()
	defer s.Unlock()

	return s.countLiveUsers(cutoff), nil
}

func (s *sessionStore) CountLiveSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	s.Lock()
	defer s.Unlock()

	var count int64
	for _, m := range s.store {
		if !m.LastActivity.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *sessionStore) ListLiveUsers(ctx context.Context, cutoff time.Time, offset, limit int) ([]storage.UserSessions, int64, error) {
	s.Lock()
	defer s.Unlock()

	byUser := make(map[string][]models.ActiveSession)
	for _, m := range s.store {
		if m.LastActivity.Before(cutoff) {
			continue
		}
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}

	users := make([]storage.UserSessions, 0, len(byUser))
	for id, rows := range byUser {
		sort.Slice(rows, func(i, j int) bool { return rows[i].LastActivity.After(rows[j].LastActivity) })
		users = append(users, storage.UserSessions{UserID: id, Sessions: rows})
	}
	sort.Slice(users, func(i, j int) bool {
		a, b := users[i].Sessions[0].LastActivity, users[j].Sessions[0].LastActivity
		if a.Equal(b) {
			return users[i].UserID < users[j].UserID
		}
		return a.After(b)
	})

	total := int64(len(users))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(users) {
		return []storage.UserSessions{}, total, nil
	}
	end := offset + limit
	if limit < 0 || end > len(users) {
		end = len(users)
	}
	return users[offset:end], total, nil
}

func (s *sessionStore) delete(userID, instanceID string) bool {
	k := key{userID, instanceID}
	if _, ok := s.store[k]; !ok {
		return false
	}
	delete(s.store, k)
	return true
}

func (s *sessionStore) deleteWhere(match func(models.ActiveSession) bool) []models.ActiveSession {
	removed := make([]models.ActiveSession, 0)
	for k, m := range s.store {
		if match(m) {
			removed = append(removed, m)
			delete(s.store, k)
		}
	}
	return removed
}

func (s *sessionStore) countLiveUsers(cutoff time.Time) int64 {
	users := make(map[string]struct{})
	for _, m := range s.store {
		if !m.LastActivity.Before(cutoff) {
			users[m.UserID] = struct{}{}
		}
	}
	return int64(len(users))
}

// sessionTx runs with the store lock already held.
type sessionTx struct {
	s *sessionStore
}

func (t *sessionTx) Find(userID, instanceID string) (*models.ActiveSession, error) {
	if m, ok := t.s.store[key{userID, instanceID}]; ok {
		return &m, nil
	}
	return nil, storage.ErrNotFound
}

func (t *sessionTx) ListLive(userID string, cutoff time.Time) ([]models.ActiveSession, error) {
	rows := make([]models.ActiveSession, 0)
	for _, m := range t.s.store {
		if m.UserID == userID && !m.LastActivity.Before(cutoff) {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LastActivity.After(rows[j].LastActivity) })
	return rows, nil
}

func (t *sessionTx) CountLiveUsers(cutoff time.Time) (int64, error) {
	return t.s.countLiveUsers(cutoff), nil
}

func (t *sessionTx) ReapUser(userID string, cutoff time.Time) ([]models.ActiveSession, error) {
	return t.s.deleteWhere(func(m models.ActiveSession) bool {
		return m.UserID == userID && m.LastActivity.Before(cutoff)
	}), nil
}

func (t *sessionTx) Upsert(s *models.ActiveSession) error {
	if s.ClientInstanceID == "" {
		s.ClientInstanceID = models.DefaultClientInstanceID
	}
	k := key{s.UserID, s.ClientInstanceID}
	if existing, ok := t.s.store[k]; ok {
		if existing.LastActivity.After(s.LastActivity) {
			s.LastActivity = existing.LastActivity
		}
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		s.ID = t.s.nextID
		t.s.nextID++
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now().UTC()
		}
	}
	t.s.store[k] = *s
	return nil
}

func (t *sessionTx) Delete(userID, instanceID string) (bool, error) {
	return t.s.delete(userID, instanceID), nil
}
