// Package liveness admits, refreshes and releases client instances against
// the session store, and reclaims the ones whose owners went away.
package liveness

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Krish-Depani/session-admission/admission"
	"github.com/Krish-Depani/session-admission/metrics"
	"github.com/Krish-Depani/session-admission/models"
	"github.com/Krish-Depani/session-admission/storage"
	log "github.com/sirupsen/logrus"
)

// PolicyResolver is satisfied by *admission.Resolver.
type PolicyResolver interface {
	Resolve(ctx context.Context, userID string) (admission.Policy, error)
	Tenant(ctx context.Context) (admission.Policy, error)
	Defaults() admission.Policy
}

// ChangeNotifier is satisfied by *notifier.Notifier. Notify must not block.
type ChangeNotifier interface {
	Notify(event models.SessionChangeEvent)
}

type Service struct {
	sessions  storage.SessionStore
	resolver  PolicyResolver
	notifier  ChangeNotifier
	evictions EvictionLedger
	now       func() time.Time

	// last tenant policy read successfully; used where a store read
	// cannot be waited on.
	lastPolicy atomic.Pointer[admission.Policy]
}

type Option func(*Service)

func WithNotifier(n ChangeNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithEvictionLedger(l EvictionLedger) Option {
	return func(s *Service) {
		if l != nil {
			s.evictions = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithInitialPolicy seeds the cached tenant policy before the first read.
func WithInitialPolicy(p admission.Policy) Option {
	return func(s *Service) { s.lastPolicy.Store(&p) }
}

func NewService(sessions storage.SessionStore, resolver PolicyResolver, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		resolver:  resolver,
		notifier:  nopNotifier{},
		evictions: NewMemoryLedger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.rememberPolicy(resolver.Defaults())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopNotifier struct{}

func (nopNotifier) Notify(models.SessionChangeEvent) {}

// Request identifies one client instance of an authenticated user.
type Request struct {
	UserID           string
	ClientInstanceID string
	IPAddress        string
	UserAgent        string
	// Displace deletes the user's oldest live instances until the new
	// one fits instead of refusing at the per-user limit.
	Displace bool
}

func (r *Request) normalize() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ClientInstanceID = strings.TrimSpace(r.ClientInstanceID)
	if r.UserID == "" {
		return ErrInvalidInput
	}
	if r.ClientInstanceID == "" {
		r.ClientInstanceID = models.DefaultClientInstanceID
	}
	return nil
}

type RegisterResult struct {
	// Refreshed is set when the pair was already live and only its
	// LastActivity moved.
	Refreshed bool
	// LiveCount is the number of distinct live users after admission.
	LiveCount int64
	// Displaced lists the instance ids removed by a displacing register.
	Displaced []string
	Policy    admission.Policy
}

// Register admits the pair or refuses it with a *LimitError. Expired rows
// of the user are reaped first. Re-registering a live pair is an
// idempotent refresh that is never counted as new.
func (s *Service) Register(ctx context.Context, req Request) (*RegisterResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	policy, err := s.resolver.Resolve(ctx, req.UserID)
	if err != nil {
		metrics.Admissions.WithLabelValues("error").Inc()
		return nil, err
	}
	s.rememberPolicy(policy)
	return s.admit(ctx, req, policy)
}

type HeartbeatResult struct {
	// Recreated is set when no live row existed and the heartbeat went
	// through a full admission.
	Recreated bool
	Policy    admission.Policy
}

// Heartbeat moves LastActivity of a live pair to now. A pair without a
// live row is re-admitted under the same checks as Register.
func (s *Service) Heartbeat(ctx context.Context, req Request) (*HeartbeatResult, error) {
	req.Displace = false
	if err := req.normalize(); err != nil {
		return nil, err
	}
	policy, err := s.resolver.Resolve(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	s.rememberPolicy(policy)

	now := s.now()
	touched, err := s.sessions.Touch(ctx, req.UserID, req.ClientInstanceID, now, policy.Cutoff(now))
	if err != nil {
		return nil, err
	}
	if touched {
		s.notifier.Notify(models.NewChangeEvent(models.ChangeUpdated, req.UserID, req.ClientInstanceID))
		return &HeartbeatResult{Policy: policy}, nil
	}

	if _, err := s.admit(ctx, req, policy); err != nil {
		return nil, err
	}
	return &HeartbeatResult{Recreated: true, Policy: policy}, nil
}

// Remove deletes the pair. Removing an absent pair is not an error.
func (s *Service) Remove(ctx context.Context, userID, instanceID string) error {
	req := Request{UserID: userID, ClientInstanceID: instanceID}
	if err := req.normalize(); err != nil {
		return err
	}
	deleted, err := s.sessions.Delete(ctx, req.UserID, req.ClientInstanceID)
	if err != nil {
		return err
	}
	if deleted {
		metrics.Removals.WithLabelValues("remove").Inc()
		s.notifier.Notify(models.NewChangeEvent(models.ChangeDeleted, req.UserID, req.ClientInstanceID))
	}
	return nil
}

// ForceRemoveUser drops every row of userID and marks each instance as
// displaced. It returns the number of rows removed.
func (s *Service) ForceRemoveUser(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrInvalidInput
	}
	removed, err := s.sessions.DeleteUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	window := s.cachedPolicy().TimeoutWindow
	for _, row := range removed {
		s.markEvicted(ctx, row.UserID, row.ClientInstanceID, window)
	}
	metrics.Removals.WithLabelValues("admin").Add(float64(len(removed)))
	s.notifyAll(models.ChangeDeleted, removed)
	return len(removed), nil
}

func (s *Service) admit(ctx context.Context, req Request, policy admission.Policy) (*RegisterResult, error) {
	now := s.now()
	cutoff := policy.Cutoff(now)

	var (
		reaped    []models.ActiveSession
		displaced []models.ActiveSession
		refreshed bool
		liveCount int64
	)
	err := s.sessions.Transact(ctx, func(tx storage.SessionTx) error {
		reaped, displaced, refreshed = nil, nil, false

		var err error
		reaped, err = tx.ReapUser(req.UserID, cutoff)
		if err != nil {
			return err
		}

		existing, err := tx.Find(req.UserID, req.ClientInstanceID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		refreshed = existing != nil

		if !refreshed {
			live, err := tx.ListLive(req.UserID, cutoff)
			if err != nil {
				return err
			}

			if over := len(live) + 1 - policy.PerUserLimit; over > 0 {
				if !req.Displace {
					return &LimitError{Scope: ScopeUser, Limit: policy.PerUserLimit, Live: int64(len(live))}
				}
				// oldest instances go first; live is newest first.
				for _, row := range live[len(live)-over:] {
					if _, err := tx.Delete(row.UserID, row.ClientInstanceID); err != nil {
						return err
					}
					displaced = append(displaced, row)
				}
			}

			if len(live) == 0 {
				users, err := tx.CountLiveUsers(cutoff)
				if err != nil {
					return err
				}
				if users >= int64(policy.GlobalLimit) {
					return &LimitError{Scope: ScopeGlobal, Limit: policy.GlobalLimit, Live: users}
				}
			}
		}

		row := &models.ActiveSession{
			UserID:           req.UserID,
			ClientInstanceID: req.ClientInstanceID,
			LastActivity:     now,
			IPAddress:        req.IPAddress,
			UserAgent:        req.UserAgent,
		}
		if err := tx.Upsert(row); err != nil {
			return err
		}

		liveCount, err = tx.CountLiveUsers(cutoff)
		return err
	})

	if len(reaped) > 0 && err == nil {
		metrics.Removals.WithLabelValues("reap").Add(float64(len(reaped)))
		s.notifyAll(models.ChangeDeleted, reaped)
	}

	var limitErr *LimitError
	switch {
	case errors.As(err, &limitErr):
		metrics.Admissions.WithLabelValues("rejected_" + string(limitErr.Scope)).Inc()
		log.WithFields(log.Fields{
			"user_id":     req.UserID,
			"instance_id": req.ClientInstanceID,
			"scope":       limitErr.Scope,
			"limit":       limitErr.Limit,
		}).Info("Admission refused")
		return nil, err
	case err != nil:
		metrics.Admissions.WithLabelValues("error").Inc()
		return nil, err
	}

	for _, row := range displaced {
		s.markEvicted(ctx, row.UserID, row.ClientInstanceID, policy.TimeoutWindow)
	}
	if len(displaced) > 0 {
		metrics.Removals.WithLabelValues("displaced").Add(float64(len(displaced)))
		s.notifyAll(models.ChangeDeleted, displaced)
	}
	s.clearEvicted(ctx, req.UserID, req.ClientInstanceID)

	result := &RegisterResult{
		Refreshed: refreshed,
		LiveCount: liveCount,
		Policy:    policy,
	}
	for _, row := range displaced {
		result.Displaced = append(result.Displaced, row.ClientInstanceID)
	}

	change := models.ChangeInserted
	if refreshed {
		change = models.ChangeUpdated
		metrics.Admissions.WithLabelValues("refreshed").Inc()
	} else {
		metrics.Admissions.WithLabelValues("admitted").Inc()
	}
	s.notifier.Notify(models.NewChangeEvent(change, req.UserID, req.ClientInstanceID))
	return result, nil
}

func (s *Service) notifyAll(t models.ChangeType, rows []models.ActiveSession) {
	for _, row := range rows {
		s.notifier.Notify(models.NewChangeEvent(t, row.UserID, row.ClientInstanceID))
	}
}

// userMark is the ledger instance id under which a user-level eviction is
// recorded. Stored instance ids are never empty.
const userMark = ""

// markEvicted records the instance and the user, so a validate call that
// names no instance also reports the displacement.
func (s *Service) markEvicted(ctx context.Context, userID, instanceID string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.resolver.Defaults().TimeoutWindow
	}
	for _, id := range []string{instanceID, userMark} {
		if err := s.evictions.MarkEvicted(ctx, userID, id, ttl); err != nil {
			log.WithFields(log.Fields{
				"user_id":     userID,
				"instance_id": instanceID,
			}).WithError(err).Warn("Failed to record eviction")
			return
		}
	}
}

// clearEvicted drops the marks of a freshly admitted instance. The user
// mark goes too: the user is live again.
func (s *Service) clearEvicted(ctx context.Context, userID, instanceID string) {
	for _, id := range []string{instanceID, userMark} {
		if err := s.evictions.ClearEvicted(ctx, userID, id); err != nil {
			log.WithFields(log.Fields{
				"user_id":     userID,
				"instance_id": instanceID,
			}).WithError(err).Debug("Failed to clear eviction mark")
			return
		}
	}
}

func (s *Service) rememberPolicy(p admission.Policy) {
	s.lastPolicy.Store(&p)
}

// cachedPolicy returns the last policy read, seeded from the configured
// defaults at construction.
func (s *Service) cachedPolicy() admission.Policy {
	if p := s.lastPolicy.Load(); p != nil {
		return *p
	}
	return s.resolver.Defaults()
}
