package liveness

import (
	"context"
	"time"

	"github.com/Krish-Depani/session-admission/metrics"
	"github.com/Krish-Depani/session-admission/models"
	log "github.com/sirupsen/logrus"
)

// Reap deletes every row with LastActivity before cutoff and returns how
// many went. The cutoff is a single snapshot, so a row refreshed to a time
// at or after it survives regardless of when the refresh lands.
func (s *Service) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := s.sessions.Reap(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		metrics.Removals.WithLabelValues("reap").Add(float64(len(removed)))
		s.notifyAll(models.ChangeDeleted, removed)
		log.WithFields(log.Fields{
			"removed": len(removed),
			"cutoff":  cutoff,
		}).Info("Reaped expired sessions")
	}
	return len(removed), nil
}

// ReapExpired reaps with the cutoff of the current tenant timeout window.
func (s *Service) ReapExpired(ctx context.Context) (int, error) {
	policy, err := s.resolver.Tenant(ctx)
	if err != nil {
		return 0, err
	}
	s.rememberPolicy(policy)
	return s.Reap(ctx, policy.Cutoff(s.now()))
}

// RunReaper sweeps on the tenant reaper interval until ctx is done. The
// interval is re-read before every pass so configuration edits apply
// without a restart. Failed passes are logged and retried next tick.
func (s *Service) RunReaper(ctx context.Context) error {
	log.Info("Session reaper started")
	defer log.Info("Session reaper stopped")

	for {
		interval := s.cachedPolicy().ReaperInterval
		if interval <= 0 {
			interval = s.resolver.Defaults().ReaperInterval
		}
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := s.ReapExpired(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Reaper pass failed")
		}
	}
}
