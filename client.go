package techmate

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/techmate/techmate-go/session"
)

// Client is the TechMate API client and the single source of truth for "who
// is logged in". The session triple (access token, refresh token, user
// snapshot) is mutated only by Client methods, persisted through a
// [session.Store], and read by the gateway and the access gate.
//
// Client instances are safe for concurrent use after [Builder.Build].
type Client struct {
	config   Config
	baseURL  string
	httpc    *http.Client
	store    session.Store
	validate *validator.Validate
	breaker  *gobreaker.CircuitBreaker
	audit    *auditDispatcher
	metrics  *Metrics
	expired  func(ctx context.Context, cause error)

	refreshGroup singleflight.Group

	mu      sync.RWMutex
	user    *User
	access  string
	refresh string

	loading atomic.Bool
	closed  atomic.Bool
}

// Close releases the client. Pending audit events are drained first.
// Operations after Close fail with [ErrClientClosed].
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closed.Store(true)
	if c.audit != nil {
		c.audit.Close()
	}
}

// MetricsSnapshot returns a deep copy of all metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) emitAudit(ctx context.Context, eventType string, success bool, err error, meta map[string]string) {
	if c == nil || c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Success:   success,
		Metadata:  meta,
	}
	if u := c.snapshotUser(); u != nil {
		event.UserID = u.ID
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.audit.Emit(ctx, event)
}

/*
====================================
SESSION SNAPSHOT
====================================
*/

// CurrentUser returns a copy of the cached user snapshot, or nil when logged
// out.
func (c *Client) CurrentUser() *User {
	return c.snapshotUser()
}

func (c *Client) snapshotUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// IsAuthenticated reports whether a user snapshot is currently held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// IsInstructorApproved reports whether the cached user carries the
// server-set instructor approval flag. False when logged out.
func (c *Client) IsInstructorApproved() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil && c.user.Profile.IsApprovedInstructor
}

// AccessToken returns the current bearer credential, or "" when logged out.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

// RefreshToken returns the current refresh credential, or "" when logged out.
func (c *Client) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresh
}

// Loading reports whether [Client.Restore] is still validating a cached
// session. The gate renders a loading indicator while this is true.
func (c *Client) Loading() bool {
	return c.loading.Load()
}

// Gate evaluates the access gate against the live session snapshot.
func (c *Client) Gate(capability Capability) Outcome {
	c.mu.RLock()
	in := GateInput{
		Loading:            c.loading.Load(),
		Authenticated:      c.user != nil,
		InstructorApproved: c.user != nil && c.user.Profile.IsApprovedInstructor,
	}
	if c.user != nil {
		in.Role = c.user.Profile.Role
	}
	c.mu.RUnlock()

	outcome := Decide(in, capability)
	switch outcome {
	case OutcomeRender:
		c.metricInc(MetricGateRender)
	case OutcomePending:
		c.metricInc(MetricGatePending)
	case OutcomeRedirectLogin, OutcomeRedirectHome:
		c.metricInc(MetricGateRedirect)
	}
	return outcome
}

/*
====================================
SESSION MUTATION
====================================
*/

// adoptSession installs a full triple as the live session and persists it.
// The in-memory swap and the store write happen under one lock so no reader
// ever observes tokens without a user or vice versa.
func (c *Client) adoptSession(ctx context.Context, access, refresh string, user *User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	c.refresh = refresh
	u := *user
	c.user = &u
	return c.store.Save(ctx, &session.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         raw,
	})
}

// swapTokens replaces the credential pair after a refresh, leaving the user
// snapshot untouched. No-op when the session was torn down in the meantime.
func (c *Client) swapTokens(ctx context.Context, access, refresh string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	c.access = access
	if refresh != "" {
		c.refresh = refresh
	}
	raw, err := json.Marshal(c.user)
	if err != nil {
		return err
	}
	return c.store.Save(ctx, &session.Session{
		AccessToken:  c.access,
		RefreshToken: c.refresh,
		User:         raw,
	})
}

// UpdateUser replaces the cached user snapshot without touching tokens.
// Call it after a profile edit; a response arriving for a stale session
// (already logged out) is dropped.
func (c *Client) UpdateUser(ctx context.Context, user *User) error {
	if user == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *user
	c.user = &u
	raw, err := json.Marshal(c.user)
	if err != nil {
		return err
	}
	return c.store.Save(ctx, &session.Session{
		AccessToken:  c.access,
		RefreshToken: c.refresh,
		User:         raw,
	})
}

// clearSession erases the live triple and the persisted copy. Idempotent.
func (c *Client) clearSession(ctx context.Context) {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.user = nil
	err := c.store.Clear(ctx)
	c.mu.Unlock()
	if err != nil {
		logf("session store clear failed: %v", err)
	}
}

// teardown is the forced variant of clearSession used when the server has
// revoked the session: it records the event and invokes the session-expired
// handler, the process analogue of redirecting to the login page.
func (c *Client) teardown(ctx context.Context, cause error) {
	c.emitAudit(ctx, auditEventSessionTeardown, false, cause, nil)
	c.clearSession(ctx)
	c.metricInc(MetricSessionTeardown)
	if c.expired != nil {
		c.expired(ctx, cause)
	}
}
