package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Krish-Depani/session-admission/config"
	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/Krish-Depani/session-admission/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDefaults config.AdmissionDefaults

func (s staticDefaults) Defaults() config.AdmissionDefaults { return config.AdmissionDefaults(s) }

var testDefaults = staticDefaults{
	GlobalMaxConcurrentUsers: 5,
	TimeoutWindowMinutes:     30,
	HeartbeatIntervalSeconds: 60,
	ValidatorTimeoutSeconds:  3,
	ReaperIntervalSeconds:    300,
}

func intPtr(v int) *int { return &v }

func TestResolve_DefaultsWhenNothingConfigured(t *testing.T) {
	r := NewResolver(memory.NewStore().Policies(), testDefaults, "default")

	p, err := r.Resolve(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, Policy{
		PerUserLimit:      1,
		GlobalLimit:       5,
		TimeoutWindow:     30 * time.Minute,
		HeartbeatInterval: time.Minute,
		ValidatorTimeout:  3 * time.Second,
		ReaperInterval:    5 * time.Minute,
	}, p)
}

func TestResolve_TenantSettingsAndOverride(t *testing.T) {
	ctx := context.Background()
	policies := memory.NewStore().Policies()
	require.NoError(t, policies.SaveSetting(ctx, &models.AdmissionSetting{
		EntityID:              "acme",
		MaxConcurrentUsers:    intPtr(2),
		TimeoutWindowMinutes:  intPtr(10),
		ReaperIntervalSeconds: intPtr(0), // ignored
	}))
	require.NoError(t, policies.SetOverride(ctx, &models.SessionLimitOverride{UserID: "power", MaxSessions: 3}))
	r := NewResolver(policies, testDefaults, "acme")

	p, err := r.Resolve(ctx, "power")
	require.NoError(t, err)
	assert.Equal(t, 3, p.PerUserLimit)
	assert.Equal(t, 2, p.GlobalLimit, "override must not touch the global cap")
	assert.Equal(t, 10*time.Minute, p.TimeoutWindow)
	assert.Equal(t, 5*time.Minute, p.ReaperInterval)

	p, err = r.Resolve(ctx, "regular")
	require.NoError(t, err)
	assert.Equal(t, 1, p.PerUserLimit)
}

func TestResolve_OtherTenantIgnored(t *testing.T) {
	ctx := context.Background()
	policies := memory.NewStore().Policies()
	require.NoError(t, policies.SaveSetting(ctx, &models.AdmissionSetting{EntityID: "other", MaxConcurrentUsers: intPtr(99)}))

	p, err := NewResolver(policies, testDefaults, "default").Tenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, p.GlobalLimit)
}

func TestResolve_HotReload(t *testing.T) {
	ctx := context.Background()
	policies := memory.NewStore().Policies()
	r := NewResolver(policies, testDefaults, "default")

	p, err := r.Tenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, p.GlobalLimit)

	require.NoError(t, policies.SaveSetting(ctx, &models.AdmissionSetting{EntityID: "default", MaxConcurrentUsers: intPtr(8)}))
	p, err = r.Tenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, p.GlobalLimit)
}

type failingPolicies struct {
	storage.PolicyStore
	err error
}

func (f failingPolicies) GetOverride(ctx context.Context, userID string) (*models.SessionLimitOverride, error) {
	return nil, f.err
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewResolver(failingPolicies{PolicyStore: memory.NewStore().Policies(), err: boom}, testDefaults, "default")

	_, err := r.Resolve(context.Background(), "user-1")
	assert.ErrorIs(t, err, boom)
}

func TestPolicyCutoff(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Policy{TimeoutWindow: 30 * time.Minute}
	assert.Equal(t, time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC), p.Cutoff(now))
}
