package liveness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Krish-Depani/session-admission/admission"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowSessions delays CountLive until release is closed.
type slowSessions struct {
	storage.SessionStore
	release chan struct{}
}

func (s *slowSessions) CountLive(ctx context.Context, userID, instanceID string, cutoff time.Time) (int64, error) {
	<-s.release
	return s.SessionStore.CountLive(ctx, userID, instanceID, cutoff)
}

type failingSessions struct {
	storage.SessionStore
}

func (failingSessions) CountLive(context.Context, string, string, time.Time) (int64, error) {
	return 0, storage.Unavailable(errors.New("connection refused"), "failed to count sessions")
}

func TestValidate_LiveAndExpired(t *testing.T) {
	f := newFixture(t, defaultsWithCap(5))
	ctx := context.Background()

	_, err := f.register("A", "tab1")
	require.NoError(t, err)

	v, err := f.svc.Validate(ctx, "A", "")
	require.NoError(t, err)
	assert.Equal(t, Validation{IsValid: true}, v)

	v, err = f.svc.Validate(ctx, "A", "tab2")
	require.NoError(t, err)
	assert.Equal(t, Validation{IsValid: false, Reason: ReasonExpired}, v)

	f.clock.Advance(31 * time.Minute)
	v, err = f.svc.Validate(ctx, "A", "")
	require.NoError(t, err)
	assert.Equal(t, Validation{IsValid: false, Reason: ReasonExpired}, v)

	// Validation does not reap.
	count, err := f.store.Sessions().CountLive(ctx, "A", "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestValidate_TimeoutFallsBackToValid(t *testing.T) {
	f := newFixture(t, defaultsWithCap(5))
	slow := &slowSessions{SessionStore: f.store.Sessions(), release: make(chan struct{})}
	t.Cleanup(func() { close(slow.release) })

	resolver := admission.NewResolver(f.store.Policies(), defaultsWithCap(5), "default")
	svc := NewService(slow, resolver,
		WithClock(f.clock.Now),
		WithInitialPolicy(admission.Policy{ValidatorTimeout: 50 * time.Millisecond}),
	)

	start := time.Now()
	v, err := svc.Validate(context.Background(), "A", "")
	require.NoError(t, err)

	assert.Equal(t, Validation{IsValid: true, Timeout: true}, v)
	assert.Less(t, time.Since(start), time.Second)
}

func TestValidate_StoreErrorFallsBackToValid(t *testing.T) {
	f := newFixture(t, defaultsWithCap(5))
	resolver := admission.NewResolver(f.store.Policies(), defaultsWithCap(5), "default")
	svc := NewService(failingSessions{f.store.Sessions()}, resolver, WithClock(f.clock.Now))

	v, err := svc.Validate(context.Background(), "A", "tab1")
	require.NoError(t, err)
	assert.Equal(t, Validation{IsValid: true, Degraded: true}, v)
}

func TestValidate_RejectsMissingUser(t *testing.T) {
	f := newFixture(t, defaultsWithCap(5))

	_, err := f.svc.Validate(context.Background(), "", "tab1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
