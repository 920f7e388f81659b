// Package admission resolves how many concurrent sessions a user may hold
// and how long a silent session stays live.
package admission

import (
	"context"
	"time"

	"github.com/Krish-Depani/session-admission/config"
	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
)

// DefaultPerUserLimit is the number of client instances a user may hold
// without an override.
const DefaultPerUserLimit = 1

// Policy is the admission policy in force for one user at one instant.
type Policy struct {
	PerUserLimit      int
	GlobalLimit       int
	TimeoutWindow     time.Duration
	HeartbeatInterval time.Duration
	ValidatorTimeout  time.Duration
	ReaperInterval    time.Duration
}

// Cutoff is the oldest LastActivity still considered live at now.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.TimeoutWindow)
}

// DefaultsSource supplies process-level fallbacks. *config.Env implements it.
type DefaultsSource interface {
	Defaults() config.AdmissionDefaults
}

// Resolver reads tenant settings and per-user overrides on every call, so
// edits made by administrative tooling apply without a restart. It never
// writes.
type Resolver struct {
	policies storage.PolicyStore
	defaults DefaultsSource
	entityID string
}

func NewResolver(policies storage.PolicyStore, defaults DefaultsSource, entityID string) *Resolver {
	return &Resolver{
		policies: policies,
		defaults: defaults,
		entityID: entityID,
	}
}

// Tenant returns the tenant-wide policy with the default per-user limit.
// Missing configuration rows yield defaults, never an error; only a
// failing store read is reported.
func (r *Resolver) Tenant(ctx context.Context) (Policy, error) {
	p := r.Defaults()

	setting, err := r.policies.GetSetting(ctx, r.entityID)
	if err != nil {
		return Policy{}, err
	}
	applySetting(&p, setting)
	return p, nil
}

// Defaults is the policy built from process configuration alone. It never
// touches the store.
func (r *Resolver) Defaults() Policy {
	d := r.defaults.Defaults()
	return Policy{
		PerUserLimit:      DefaultPerUserLimit,
		GlobalLimit:       d.GlobalMaxConcurrentUsers,
		TimeoutWindow:     time.Duration(d.TimeoutWindowMinutes) * time.Minute,
		HeartbeatInterval: time.Duration(d.HeartbeatIntervalSeconds) * time.Second,
		ValidatorTimeout:  time.Duration(d.ValidatorTimeoutSeconds) * time.Second,
		ReaperInterval:    time.Duration(d.ReaperIntervalSeconds) * time.Second,
	}
}

// Resolve returns the policy for userID. An override raises only the
// per-user instance quota; the global distinct-user cap is unchanged.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Policy, error) {
	p, err := r.Tenant(ctx)
	if err != nil {
		return Policy{}, err
	}

	override, err := r.policies.GetOverride(ctx, userID)
	if err != nil {
		return Policy{}, err
	}
	if override != nil && override.MaxSessions > 0 {
		p.PerUserLimit = override.MaxSessions
	}
	return p, nil
}

func applySetting(p *Policy, s *models.AdmissionSetting) {
	if s == nil {
		return
	}
	if v := positive(s.MaxConcurrentUsers); v > 0 {
		p.GlobalLimit = v
	}
	if v := positive(s.TimeoutWindowMinutes); v > 0 {
		p.TimeoutWindow = time.Duration(v) * time.Minute
	}
	if v := positive(s.HeartbeatIntervalSeconds); v > 0 {
		p.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := positive(s.ValidatorTimeoutSeconds); v > 0 {
		p.ValidatorTimeout = time.Duration(v) * time.Second
	}
	if v := positive(s.ReaperIntervalSeconds); v > 0 {
		p.ReaperInterval = time.Duration(v) * time.Second
	}
}

func positive(v *int) int {
	if v == nil || *v < 1 {
		return 0
	}
	return *v
}
