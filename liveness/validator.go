package liveness

import (
	"context"
	"strings"
	"time"

	"github.com/Krish-Depani/session-admission/metrics"
	log "github.com/sirupsen/logrus"
)

const (
	ReasonDisplaced = "displaced"
	ReasonExpired   = "expired"
)

// Validation is the answer to "is my session still admitted".
type Validation struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
	// Timeout is set when the store did not answer within the validator
	// budget and the answer fell back to valid.
	Timeout bool `json:"timeout,omitempty"`
	// Degraded is set when the store read failed and the answer fell
	// back to valid.
	Degraded bool `json:"degraded,omitempty"`
}

type validationOutcome struct {
	v   Validation
	err error
}

// Validate reports whether userID still holds a live session, or, when
// instanceID is not empty, whether that instance does. It never mutates
// the store.
//
// The store read races the validator timeout. A slow or failing read
// answers valid: a false "invalid" signs the user out, a false "valid"
// only delays noticing an eviction. The losing read is abandoned, not
// cancelled, and its result is discarded.
func (s *Service) Validate(ctx context.Context, userID, instanceID string) (Validation, error) {
	userID = strings.TrimSpace(userID)
	instanceID = strings.TrimSpace(instanceID)
	if userID == "" {
		return Validation{}, ErrInvalidInput
	}

	budget := s.cachedPolicy().ValidatorTimeout
	if budget <= 0 {
		budget = s.resolver.Defaults().ValidatorTimeout
	}

	done := make(chan validationOutcome, 1)
	go func() {
		v, err := s.check(context.WithoutCancel(ctx), userID, instanceID)
		done <- validationOutcome{v: v, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			log.WithFields(log.Fields{
				"user_id":     userID,
				"instance_id": instanceID,
			}).WithError(out.err).Warn("Validation read failed, assuming valid")
			return Validation{IsValid: true, Degraded: true}, nil
		}
		return out.v, nil
	case <-timer.C:
		metrics.ValidatorTimeouts.Inc()
		log.WithFields(log.Fields{
			"user_id": userID,
			"budget":  budget,
		}).Warn("Validation timed out, assuming valid")
		return Validation{IsValid: true, Timeout: true}, nil
	case <-ctx.Done():
		return Validation{IsValid: true, Timeout: true}, nil
	}
}

func (s *Service) check(ctx context.Context, userID, instanceID string) (Validation, error) {
	policy, err := s.resolver.Tenant(ctx)
	if err != nil {
		return Validation{}, err
	}
	s.rememberPolicy(policy)

	count, err := s.sessions.CountLive(ctx, userID, instanceID, policy.Cutoff(s.now()))
	if err != nil {
		return Validation{}, err
	}
	if count > 0 {
		return Validation{IsValid: true}, nil
	}

	v := Validation{IsValid: false, Reason: ReasonExpired}
	lookup := instanceID
	if lookup == "" {
		lookup = userMark
	}
	evicted, err := s.evictions.IsEvicted(ctx, userID, lookup)
	if err != nil {
		log.WithField("user_id", userID).WithError(err).Debug("Eviction lookup failed")
	} else if evicted {
		v.Reason = ReasonDisplaced
	}
	return v, nil
}
