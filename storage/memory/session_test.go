package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *sessionStore, rows ...models.ActiveSession) {
	t.Helper()
	err := s.Transact(context.Background(), func(tx storage.SessionTx) error {
		for i := range rows {
			if err := tx.Upsert(&rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUpsert_UpdatesInPlace(t *testing.T) {
	s := newSessionStore()
	now := time.Now()

	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "tab1", LastActivity: now},
		models.ActiveSession{UserID: "a", ClientInstanceID: "tab1", LastActivity: now.Add(time.Second)},
	)

	assert.Len(t, s.store, 1)
	assert.Equal(t, now.Add(time.Second), s.store[key{"a", "tab1"}].LastActivity)
}

func TestUpsert_NeverMovesLastActivityBack(t *testing.T) {
	s := newSessionStore()
	now := time.Now()

	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "tab1", LastActivity: now},
		models.ActiveSession{UserID: "a", ClientInstanceID: "tab1", LastActivity: now.Add(-time.Minute)},
	)

	assert.Equal(t, now, s.store[key{"a", "tab1"}].LastActivity)
}

func TestUpsert_DefaultInstance(t *testing.T) {
	s := newSessionStore()
	seed(t, s, models.ActiveSession{UserID: "a", LastActivity: time.Now()})

	_, ok := s.store[key{"a", models.DefaultClientInstanceID}]
	assert.True(t, ok)
}

func TestTransact_RollsBackOnError(t *testing.T) {
	s := newSessionStore()
	boom := errors.New("boom")

	err := s.Transact(context.Background(), func(tx storage.SessionTx) error {
		require.NoError(t, tx.Upsert(&models.ActiveSession{UserID: "a", ClientInstanceID: "x", LastActivity: time.Now()}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.store)
}

func TestTouch(t *testing.T) {
	s := newSessionStore()
	now := time.Now()
	window := 30 * time.Minute
	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "live", LastActivity: now.Add(-time.Minute)},
		models.ActiveSession{UserID: "a", ClientInstanceID: "dead", LastActivity: now.Add(-31 * time.Minute)},
	)
	ctx := context.Background()

	ok, err := s.Touch(ctx, "a", "live", now, now.Add(-window))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, s.store[key{"a", "live"}].LastActivity)

	ok, err = s.Touch(ctx, "a", "live", now.Add(-time.Hour), now.Add(-2*window))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, s.store[key{"a", "live"}].LastActivity, "out of order touch must not rewind")

	ok, err = s.Touch(ctx, "a", "dead", now, now.Add(-window))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Touch(ctx, "a", "missing", now, now.Add(-window))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReap_RemovesExactlyRowsBeforeCutoff(t *testing.T) {
	s := newSessionStore()
	cutoff := time.Now()
	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "old", LastActivity: cutoff.Add(-time.Nanosecond)},
		models.ActiveSession{UserID: "b", ClientInstanceID: "edge", LastActivity: cutoff},
		models.ActiveSession{UserID: "c", ClientInstanceID: "new", LastActivity: cutoff.Add(time.Second)},
	)

	removed, err := s.Reap(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].UserID)
	assert.Len(t, s.store, 2)
}

func TestCounts(t *testing.T) {
	s := newSessionStore()
	now := time.Now()
	cutoff := now.Add(-30 * time.Minute)
	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "1", LastActivity: now},
		models.ActiveSession{UserID: "a", ClientInstanceID: "2", LastActivity: now},
		models.ActiveSession{UserID: "b", ClientInstanceID: "1", LastActivity: now},
		models.ActiveSession{UserID: "c", ClientInstanceID: "1", LastActivity: now.Add(-time.Hour)},
	)
	ctx := context.Background()

	n, err := s.CountLive(ctx, "a", "", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.CountLive(ctx, "a", "2", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.CountLive(ctx, "c", "", cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.CountLiveUsers(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.CountLiveSessions(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestListLiveUsers_Pagination(t *testing.T) {
	s := newSessionStore()
	now := time.Now()
	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "1", LastActivity: now.Add(-3 * time.Minute)},
		models.ActiveSession{UserID: "b", ClientInstanceID: "1", LastActivity: now.Add(-2 * time.Minute)},
		models.ActiveSession{UserID: "b", ClientInstanceID: "2", LastActivity: now.Add(-time.Minute)},
		models.ActiveSession{UserID: "c", ClientInstanceID: "1", LastActivity: now},
		models.ActiveSession{UserID: "d", ClientInstanceID: "1", LastActivity: now.Add(-time.Hour)},
	)
	cutoff := now.Add(-30 * time.Minute)

	page, total, err := s.ListLiveUsers(context.Background(), cutoff, 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].UserID)
	assert.Equal(t, "b", page[1].UserID)
	assert.Len(t, page[1].Sessions, 2)

	page, _, err = s.ListLiveUsers(context.Background(), cutoff, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].UserID)

	page, _, err = s.ListLiveUsers(context.Background(), cutoff, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestListLiveUsers_ClampsOffset(t *testing.T) {
	s := newSessionStore()
	now := time.Now()
	seed(t, s,
		models.ActiveSession{UserID: "a", ClientInstanceID: "1", LastActivity: now},
		models.ActiveSession{UserID: "b", ClientInstanceID: "1", LastActivity: now.Add(-time.Minute)},
	)
	cutoff := now.Add(-30 * time.Minute)

	page, total, err := s.ListLiveUsers(context.Background(), cutoff, -200, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].UserID)

	page, _, err = s.ListLiveUsers(context.Background(), cutoff, math.MaxInt, 100)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newSessionStore()
	seed(t, s, models.ActiveSession{UserID: "a", ClientInstanceID: "1", LastActivity: time.Now()})
	ctx := context.Background()

	ok, err := s.Delete(ctx, "a", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, "a", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Delete(ctx, "never", "existed")
	require.NoError(t, err)
	assert.False(t, ok)
}
