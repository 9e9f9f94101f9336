package techmate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// refreshBackend is a fake server that rejects a configured number of access
// tokens before the refresh endpoint rotates to a fresh one.
type refreshBackend struct {
	t *testing.T

	mu          sync.Mutex
	validAccess string
	refreshes   atomic.Int64
	requests    atomic.Int64
	requestIDs  []string
	failRefresh bool
}

func newRefreshBackend(t *testing.T, validAccess string) *refreshBackend {
	return &refreshBackend{t: t, validAccess: validAccess}
}

func (b *refreshBackend) setValidAccess(token string) {
	b.mu.Lock()
	b.validAccess = token
	b.mu.Unlock()
}

func (b *refreshBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/token/refresh/" {
		b.refreshes.Add(1)
		if r.Header.Get("Authorization") != "" {
			b.t.Errorf("refresh request carried a bearer token")
		}
		if b.failRefresh {
			writeJSON(b.t, w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		var body struct {
			Refresh string `json:"refresh"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
			writeJSON(b.t, w, http.StatusBadRequest, map[string]string{"detail": "refresh required"})
			return
		}
		b.mu.Lock()
		b.validAccess = "rotated-" + body.Refresh
		valid := b.validAccess
		b.mu.Unlock()
		writeJSON(b.t, w, http.StatusOK, TokenPair{Access: valid})
		return
	}

	b.requests.Add(1)
	b.mu.Lock()
	b.requestIDs = append(b.requestIDs, r.Header.Get("X-Request-ID"))
	valid := b.validAccess
	b.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		writeJSON(b.t, w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(b.t, w, http.StatusOK, testUser())
}

func TestGatewayRetriesExactlyOnceAfterRefresh(t *testing.T) {
	backend := newRefreshBackend(t, "fresh-access")
	client := newTestClient(t, backend, func(b *Builder) {
		b.WithMetricsEnabled(true)
	})
	seedSession(t, client, testUser(), "stale-access", testRefresh)
	backend.setValidAccess("rotated-" + testRefresh)

	user, err := client.FetchCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("fetch after stale access: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user %q", user.Username)
	}

	if got := backend.refreshes.Load(); got != 1 {
		t.Fatalf("expected 1 refresh call, got %d", got)
	}
	if got := backend.requests.Load(); got != 2 {
		t.Fatalf("expected original + one retry, got %d requests", got)
	}
	if got := client.AccessToken(); got != "rotated-"+testRefresh {
		t.Fatalf("access token not swapped: %q", got)
	}
	if got := client.RefreshToken(); got != testRefresh {
		t.Fatalf("refresh token should survive a non-rotating refresh: %q", got)
	}
	if backend.requestIDs[0] == "" || backend.requestIDs[0] != backend.requestIDs[1] {
		t.Fatalf("retry should reuse the original request ID: %v", backend.requestIDs)
	}
	if got := client.MetricsSnapshot().Counters[MetricRequestRetried]; got != 1 {
		t.Fatalf("retry metric = %d, want 1", got)
	}
}

func TestGatewaySecond401IsSurfacedNotRetried(t *testing.T) {
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			writeJSON(t, w, http.StatusOK, TokenPair{Access: "new-access"})
			return
		}
		requests.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"detail": "still not valid"})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	_, err := client.FetchCurrentUser(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected surfaced 401 APIError, got %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
	// A 401 after a successful refresh is a server decision, not an expired
	// session: the session must stay intact.
	if !client.IsAuthenticated() {
		t.Fatalf("session torn down after surfaced 401")
	}
}

func TestGatewayRefreshFailureTearsDownSession(t *testing.T) {
	backend := newRefreshBackend(t, "valid-access")
	backend.failRefresh = true

	var expiredCause error
	var expiredCalls atomic.Int64
	client := newTestClient(t, backend, func(b *Builder) {
		b.WithMetricsEnabled(true)
		b.WithSessionExpiredHandler(func(_ context.Context, cause error) {
			expiredCause = cause
			expiredCalls.Add(1)
		})
	})
	seedSession(t, client, testUser(), "stale-access", testRefresh)

	_, err := client.FetchCurrentUser(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if client.IsAuthenticated() {
		t.Fatalf("session survived a rejected refresh")
	}
	if client.AccessToken() != "" || client.RefreshToken() != "" || client.CurrentUser() != nil {
		t.Fatalf("teardown left partial session state")
	}
	if got := expiredCalls.Load(); got != 1 {
		t.Fatalf("expired handler called %d times, want 1", got)
	}
	if !errors.Is(expiredCause, ErrSessionExpired) {
		t.Fatalf("expired handler cause = %v", expiredCause)
	}
	snap := client.MetricsSnapshot()
	if snap.Counters[MetricRefreshFailure] != 1 || snap.Counters[MetricSessionTeardown] != 1 {
		t.Fatalf("teardown metrics wrong: %+v", snap.Counters)
	}
}

func TestGatewayConcurrent401sCoalesceToOneRefresh(t *testing.T) {
	backend := newRefreshBackend(t, "nobody-has-this")
	client := newTestClient(t, backend)
	seedSession(t, client, testUser(), "stale-access", testRefresh)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := client.FetchCurrentUser(context.Background())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("request failed after coalesced refresh: %v", err)
		}
	}
	if got := backend.refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh flight, got %d", got)
	}
}

func TestGatewayNon401ErrorsPassThrough(t *testing.T) {
	var refreshes atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			refreshes.Add(1)
			writeJSON(t, w, http.StatusOK, TokenPair{Access: "x"})
			return
		}
		writeJSON(t, w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	_, err := client.GetTutorial(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if refreshes.Load() != 0 {
		t.Fatalf("non-401 error triggered a refresh")
	}
	if !client.IsAuthenticated() {
		t.Fatalf("non-401 error disturbed the session")
	}
}

func TestGatewayFieldErrorsPreserved(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"title":        []string{"This field is required."},
			"content_type": []string{"\"pdf\" is not a valid choice."},
		})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testInstructor(true), testAccess, testRefresh)

	_, err := client.CreateTutorial(context.Background(), TutorialInput{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if got := apiErr.FieldErrors("title"); len(got) != 1 || got[0] != "This field is required." {
		t.Fatalf("title field errors = %v", got)
	}
	if got := apiErr.FieldErrors("content_type"); len(got) != 1 {
		t.Fatalf("content_type field errors = %v", got)
	}
}

func TestGatewayForbiddenMapsToApprovalPendingForUnapprovedInstructor(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
	})

	client := newTestClient(t, handler)
	seedSession(t, client, testInstructor(false), testAccess, testRefresh)
	_, err := client.CreateTutorial(context.Background(), TutorialInput{Title: "Go"})
	if !errors.Is(err, ErrApprovalPending) {
		t.Fatalf("unapproved instructor 403 should match ErrApprovalPending, got %v", err)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("403 should still match ErrForbidden, got %v", err)
	}

	// The same 403 against a student is plain forbidden.
	student := newTestClient(t, handler)
	seedSession(t, student, testUser(), testAccess, testRefresh)
	_, err = student.CreateTutorial(context.Background(), TutorialInput{Title: "Go"})
	if errors.Is(err, ErrApprovalPending) {
		t.Fatalf("student 403 must not match ErrApprovalPending")
	}
}

func TestGatewayProactiveRefreshSkipsThe401RoundTrip(t *testing.T) {
	expired := mintToken(t, time.Now().Add(-time.Minute))
	backend := newRefreshBackend(t, "rotated-"+testRefresh)
	cfg := defaultConfig()
	cfg.Gateway.ProactiveRefresh = true
	client := newTestClient(t, backend, func(b *Builder) {
		b.WithConfig(cfg)
	})
	seedSession(t, client, testUser(), expired, testRefresh)

	if _, err := client.FetchCurrentUser(context.Background()); err != nil {
		t.Fatalf("fetch with expired token: %v", err)
	}
	if got := backend.refreshes.Load(); got != 1 {
		t.Fatalf("expected one proactive refresh, got %d", got)
	}
	if got := backend.requests.Load(); got != 1 {
		t.Fatalf("expected a single authorized attempt, got %d", got)
	}
}

func TestGatewayBreakerRejectsFast(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	})

	cfg := defaultConfig()
	cfg.Breaker.Enabled = true
	cfg.Breaker.FailureThreshold = 3
	client := newTestClient(t, handler, func(b *Builder) {
		b.WithConfig(cfg)
		b.WithMetricsEnabled(true)
	})

	// Trip the breaker with consecutive 5xx answers.
	for i := 0; i < 3; i++ {
		_, err := client.ListTutorials(context.Background(), ListTutorialsOptions{})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
			t.Fatalf("attempt %d: expected 500 APIError, got %v", i, err)
		}
	}

	before := hits.Load()
	_, err := client.ListTutorials(context.Background(), ListTutorialsOptions{})
	if !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected from open breaker, got %v", err)
	}
	if hits.Load() != before {
		t.Fatalf("open breaker still dispatched a request")
	}
	if got := client.MetricsSnapshot().Counters[MetricBreakerRejected]; got == 0 {
		t.Fatalf("breaker rejection not counted")
	}
}

func TestGatewayClosedClientRejectsRequests(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	client.Close()
	if _, err := client.ListTutorials(context.Background(), ListTutorialsOptions{}); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
