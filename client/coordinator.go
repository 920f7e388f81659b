// Package client drives one client instance through the liveness
// protocol: admission, heartbeats, validation and teardown.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultTeardownTimeout   = 2 * time.Second

	ReasonDisplaced = "displaced"
	ReasonExpired   = "expired"
)

type State int32

const (
	StateUnregistered State = iota
	StateActive
	StateRejected
	StateTeardown
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateActive:
		return "ACTIVE"
	case StateRejected:
		return "REJECTED"
	case StateTeardown:
		return "TEARDOWN"
	}
	return "UNKNOWN"
}

// SignedOutMessage is the user-facing text for a validator sign-out.
func SignedOutMessage(reason string) string {
	if reason == ReasonDisplaced {
		return "Your session was closed because you signed in elsewhere."
	}
	return "Your session was closed due to inactivity."
}

type Option func(*Coordinator)

func WithInstanceID(id string) Option {
	return func(c *Coordinator) { c.instanceID = id }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.heartbeatInterval = d }
}

// WithValidateInterval enables the periodic validation check.
func WithValidateInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.validateInterval = d }
}

func WithTeardownTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.teardownTimeout = d }
}

func WithBroadcaster(b *LocalBroadcaster) Option {
	return func(c *Coordinator) { c.broadcaster = b }
}

// OnRejected is called when a heartbeat is refused for capacity.
func OnRejected(fn func(*ConflictError)) Option {
	return func(c *Coordinator) { c.onRejected = fn }
}

// OnSignedOut is called when validation finds the session gone.
func OnSignedOut(fn func(reason string)) Option {
	return func(c *Coordinator) { c.onSignedOut = fn }
}

// OnSiblingRemoved is called when another instance of the same user
// tears down in this process.
func OnSiblingRemoved(fn func(Marker)) Option {
	return func(c *Coordinator) { c.onSiblingRemoved = fn }
}

// Coordinator runs the lifecycle of one client instance:
// UNREGISTERED -> ACTIVE -> TEARDOWN, or REJECTED on a capacity refusal.
type Coordinator struct {
	userID     string
	instanceID string
	transport  Transport

	heartbeatInterval time.Duration
	validateInterval  time.Duration
	teardownTimeout   time.Duration
	broadcaster       *LocalBroadcaster

	onRejected       func(*ConflictError)
	onSignedOut      func(reason string)
	onSiblingRemoved func(Marker)

	state       atomic.Int32
	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	focus       chan struct{}
}

func NewCoordinator(userID string, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		userID:            userID,
		instanceID:        uuid.New().String(),
		transport:         transport,
		heartbeatInterval: defaultHeartbeatInterval,
		teardownTimeout:   defaultTeardownTimeout,
		focus:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) request(displace bool) SessionRequest {
	return SessionRequest{UserID: c.userID, ClientInstanceID: c.instanceID, Displace: displace}
}

// Start registers the instance and starts its loops. A capacity refusal
// moves the instance to REJECTED and returns a *ConflictError; any other
// failure leaves it UNREGISTERED so Start may be called again.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.start(ctx, false)
}

// Displace retries a rejected registration, removing the user's other
// instances. Call it only after the user confirmed the takeover.
func (c *Coordinator) Displace(ctx context.Context) error {
	return c.start(ctx, true)
}

func (c *Coordinator) start(ctx context.Context, displace bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateActive:
		return nil
	case StateTeardown:
		return ErrNotActive
	}

	res, err := c.transport.Register(ctx, c.request(displace))
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			c.state.Store(int32(StateRejected))
		}
		return err
	}

	if res.HeartbeatIntervalSeconds > 0 {
		c.heartbeatInterval = time.Duration(res.HeartbeatIntervalSeconds) * time.Second
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state.Store(int32(StateActive))

	if c.broadcaster != nil {
		c.unsubscribe = c.broadcaster.Subscribe(c.onMarker)
	}

	go c.heartbeatLoop(loopCtx, c.heartbeatInterval)
	if c.validateInterval > 0 {
		go c.validateLoop(loopCtx, c.validateInterval)
	}

	log.WithFields(log.Fields{
		"user_id":     c.userID,
		"instance_id": c.instanceID,
		"live_count":  res.LiveCount,
	}).Debug("Client instance admitted")
	return nil
}

// Focus asks for an immediate heartbeat, as when the instance regains the
// foreground. It never blocks.
func (c *Coordinator) Focus() {
	select {
	case c.focus <- struct{}{}:
	default:
	}
}

// Teardown stops the loops without waiting for in-flight calls, sends a
// best-effort remove and tells sibling instances. Safe to call more than
// once; only the first call from ACTIVE sends anything.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	wasActive := c.stopLocked()
	c.mu.Unlock()
	if !wasActive {
		return
	}

	req := c.request(false)
	sent := false
	if b, ok := c.transport.(Beaconer); ok {
		sent = b.Beacon(req)
	}
	if !sent {
		ctx, cancel := context.WithTimeout(context.Background(), c.teardownTimeout)
		if err := c.transport.Remove(ctx, req); err != nil {
			log.WithError(err).WithField("instance_id", c.instanceID).Debug("Remove on teardown failed")
		}
		cancel()
	}

	if c.broadcaster != nil {
		c.broadcaster.Publish(Marker{UserID: c.userID, InstanceID: c.instanceID, At: time.Now()})
	}
}

// stopLocked cancels the loops and reports whether the instance was active.
func (c *Coordinator) stopLocked() bool {
	prev := State(c.state.Swap(int32(StateTeardown)))
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	return prev == StateActive
}

func (c *Coordinator) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.focus:
		}

		err := c.heartbeat(ctx, interval)
		if err == nil || ctx.Err() != nil {
			continue
		}

		var conflict *ConflictError
		if errors.As(err, &conflict) {
			c.reject(conflict)
			return
		}
		// A missed beat is not fatal; the server keeps the row for the
		// whole timeout window.
		log.WithError(err).WithField("instance_id", c.instanceID).Warn("Heartbeat failed, retrying next interval")
	}
}

// heartbeat retries transient failures with backoff for at most half an
// interval so retries never overlap the next tick.
func (c *Coordinator) heartbeat(ctx context.Context, interval time.Duration) error {
	operation := func() error {
		err := c.transport.Heartbeat(ctx, c.request(false))
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	backoffStrategy := backoff.WithContext(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(interval/20),
			backoff.WithMaxInterval(interval/4),
			backoff.WithMaxElapsedTime(interval/2),
		),
		ctx,
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		log.WithError(err).WithField("retry_in", d).Debug("Retrying heartbeat")
	})
}

func (c *Coordinator) reject(conflict *ConflictError) {
	c.mu.Lock()
	if c.State() != StateActive {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.state.Store(int32(StateRejected))
	c.mu.Unlock()

	if c.onRejected != nil {
		c.onRejected(conflict)
	}
}

func (c *Coordinator) validateLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		v, err := c.transport.Validate(ctx, c.userID, c.instanceID)
		if err != nil || v.IsValid {
			continue
		}

		// The server already dropped the row, so no remove is sent.
		c.mu.Lock()
		wasActive := State(c.state.Load()) == StateActive
		c.stopLocked()
		c.mu.Unlock()

		if wasActive && c.onSignedOut != nil {
			reason := v.Reason
			if reason == "" {
				reason = ReasonExpired
			}
			c.onSignedOut(reason)
		}
		return
	}
}

func (c *Coordinator) onMarker(m Marker) {
	if m.UserID != c.userID || m.InstanceID == c.instanceID {
		return
	}
	if c.onSiblingRemoved != nil {
		c.onSiblingRemoved(m)
	}
}
