package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Krish-Depani/session-admission/admission"
	"github.com/Krish-Depani/session-admission/config"
	"github.com/Krish-Depani/session-admission/database"
	"github.com/Krish-Depani/session-admission/liveness"
	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupStore connects to the Postgres named by the DB_* variables, applies
// the migrations and empties every table.
func setupStore(t *testing.T) storage.Interface {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("Skipping integration test: set INTEGRATION env var to run")
	}

	host := getenv("DB_HOST", "localhost")
	user := getenv("DB_USER", "postgres")
	password := getenv("DB_PASSWORD", "postgres")
	name := getenv("DB_NAME", "sessions_test")
	port := getenv("DB_PORT", "5432")

	require.NoError(t, database.Migrate(database.PostgresURL(host, user, password, name, port), "up"))

	db, err := database.NewPostgresClient(host, user, password, name, port)
	require.NoError(t, err)
	require.NoError(t, db.Exec("TRUNCATE active_sessions, admission_settings, session_limit_overrides").Error)

	s := NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type staticDefaults config.AdmissionDefaults

func (s staticDefaults) Defaults() config.AdmissionDefaults { return config.AdmissionDefaults(s) }

func newService(s storage.Interface, globalMax int) *liveness.Service {
	d := staticDefaults{
		GlobalMaxConcurrentUsers: globalMax,
		TimeoutWindowMinutes:     30,
		HeartbeatIntervalSeconds: 60,
		ValidatorTimeoutSeconds:  3,
		ReaperIntervalSeconds:    300,
	}
	return liveness.NewService(s.Sessions(), admission.NewResolver(s.Policies(), d, "default"))
}

func upsert(t *testing.T, s storage.SessionStore, rows ...models.ActiveSession) {
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

// timestamptz keeps microseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func TestTransact_ConcurrentAdmissionsHoldGlobalCap(t *testing.T) {
	s := setupStore(t)
	svc := newService(s, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Register(ctx, liveness.Request{UserID: fmt.Sprintf("seed-%d", i), ClientInstanceID: "tab1"})
		require.NoError(t, err)
	}

	const contenders = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, liveness.Request{UserID: fmt.Sprintf("user-%d", i), ClientInstanceID: "tab1"})
			mu.Lock()
			defer mu.Unlock()
			var limitErr *liveness.LimitError
			switch {
			case err == nil:
				admitted++
			case errors.As(err, &limitErr):
				assert.Equal(t, liveness.ScopeGlobal, limitErr.Scope)
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, contenders-1, refused)

	users, err := s.Sessions().CountLiveUsers(ctx, now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 5, users)
}

func TestTransact_ConcurrentInstancesHoldUserLimit(t *testing.T) {
	s := setupStore(t)
	svc := newService(s, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, liveness.Request{UserID: "A", ClientInstanceID: fmt.Sprintf("tab%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	admitted := 0
	for err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, liveness.ErrConcurrentLimit)
	}
	assert.Equal(t, 1, admitted)

	count, err := s.Sessions().CountLive(ctx, "A", "", now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUpsert_NeverMovesLastActivityBack(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	later := now()

	upsert(t, s.Sessions(), models.ActiveSession{UserID: "A", ClientInstanceID: "tab1", LastActivity: later})
	upsert(t, s.Sessions(), models.ActiveSession{UserID: "A", ClientInstanceID: "tab1", LastActivity: later.Add(-time.Minute)})

	var row *models.ActiveSession
	err := s.Sessions().Transact(ctx, func(tx storage.SessionTx) error {
		var err error
		row, err = tx.Find("A", "tab1")
		return err
	})
	require.NoError(t, err)
	assert.True(t, row.LastActivity.Equal(later), "got %s, want %s", row.LastActivity, later)

	count, err := s.Sessions().CountLiveSessions(ctx, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestReap_RemovesExactlyRowsBeforeCutoff(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	cutoff := now().Add(-30 * time.Minute)

	upsert(t, s.Sessions(),
		models.ActiveSession{UserID: "old", ClientInstanceID: "tab1", LastActivity: cutoff.Add(-time.Microsecond)},
		models.ActiveSession{UserID: "edge", ClientInstanceID: "tab1", LastActivity: cutoff},
		models.ActiveSession{UserID: "fresh", ClientInstanceID: "tab1", LastActivity: now()},
	)

	removed, err := s.Sessions().Reap(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "old", removed[0].UserID)

	for user, want := range map[string]int64{"old": 0, "edge": 1, "fresh": 1} {
		count, err := s.Sessions().CountLive(ctx, user, "", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, want, count, user)
	}
}

func TestTouch_ExpiredRowIsNotRefreshed(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	current := now()
	cutoff := current.Add(-30 * time.Minute)

	upsert(t, s.Sessions(),
		models.ActiveSession{UserID: "A", ClientInstanceID: "tab1", LastActivity: cutoff.Add(-time.Second)},
		models.ActiveSession{UserID: "B", ClientInstanceID: "tab1", LastActivity: cutoff.Add(time.Second)},
	)

	touched, err := s.Sessions().Touch(ctx, "A", "tab1", current, cutoff)
	require.NoError(t, err)
	assert.False(t, touched)

	touched, err = s.Sessions().Touch(ctx, "B", "tab1", current, cutoff)
	require.NoError(t, err)
	assert.True(t, touched)

	touched, err = s.Sessions().Touch(ctx, "missing", "tab1", current, cutoff)
	require.NoError(t, err)
	assert.False(t, touched)

	count, err := s.Sessions().CountLive(ctx, "A", "tab1", cutoff)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPolicyStore_MissesReturnNil(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	setting, err := s.Policies().GetSetting(ctx, "no-such-tenant")
	assert.NoError(t, err)
	assert.Nil(t, setting)

	override, err := s.Policies().GetOverride(ctx, "no-such-user")
	assert.NoError(t, err)
	assert.Nil(t, override)

	require.NoError(t, s.Policies().SetOverride(ctx, &models.SessionLimitOverride{UserID: "power", MaxSessions: 3}))
	override, err = s.Policies().GetOverride(ctx, "power")
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Equal(t, 3, override.MaxSessions)
}
