// Command techmate-smoke drives the client against a TechMate backend and
// reports latency percentiles per phase. With no -base-url it spins up an
// embedded fake backend whose access tokens expire aggressively, so the
// silent-refresh path is load-tested too.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	techmate "github.com/techmate/techmate-go"
)

func main() {
	var (
		baseURL     = flag.String("base-url", "", "backend base URL; if empty an embedded fake backend is used")
		username    = flag.String("username", "alice", "login username")
		pass        = flag.String("password", "correct-horse", "login password")
		ops         = flag.Int("ops", 20000, "operations per phase")
		concurrency = flag.Int("concurrency", 64, "concurrent workers")
	)
	flag.Parse()

	if *ops <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "ops and concurrency must be > 0")
		os.Exit(2)
	}

	url := *baseURL
	if url == "" {
		backend := httptest.NewServer(newFakeBackend())
		defer backend.Close()
		url = backend.URL
		fmt.Printf("using embedded backend at %s\n", url)
	} else {
		fmt.Printf("using backend at %s\n", url)
	}

	client, err := techmate.New(url).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Login(ctx, *username, *pass); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	browseStats := runPhase("browse", *ops, *concurrency, func(r *rand.Rand) error {
		if r.Intn(4) == 0 {
			_, err := client.GetTutorial(ctx, int64(1+r.Intn(2)))
			return err
		}
		_, err := client.ListTutorials(ctx, techmate.ListTutorialsOptions{})
		return err
	})
	authStats := runPhase("authorized", *ops, *concurrency, func(r *rand.Rand) error {
		if r.Intn(3) == 0 {
			_, err := client.GetProgress(ctx, 1)
			return err
		}
		_, err := client.FetchCurrentUser(ctx)
		return err
	})

	fmt.Println("---- results ----")
	printStats("browse", browseStats)
	printStats("authorized", authStats)

	snap := client.MetricsSnapshot()
	fmt.Printf("refreshes=%d retries=%d teardowns=%d\n",
		snap.Counters[techmate.MetricRefreshSuccess],
		snap.Counters[techmate.MetricRequestRetried],
		snap.Counters[techmate.MetricSessionTeardown])
}

func runPhase(name string, ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	fmt.Printf("running %s phase (%d ops, %d workers)...\n", name, ops, concurrency)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// fakeBackend answers just enough of the API for the smoke phases. Access
// tokens survive a bounded number of authorized calls, forcing regular
// refresh flights under load.
type fakeBackend struct {
	mu     sync.Mutex
	access string
	serial int
	uses   int
}

const accessTokenUses = 200

func newFakeBackend() http.Handler {
	b := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login/", b.login)
	mux.HandleFunc("POST /auth/token/refresh/", b.refresh)
	mux.HandleFunc("GET /auth/me/", b.authed(b.me))
	mux.HandleFunc("GET /tutorials/", b.tutorials)
	mux.HandleFunc("GET /tutorials/1/", b.tutorial)
	mux.HandleFunc("GET /tutorials/2/", b.tutorial)
	mux.HandleFunc("GET /tutorials/1/progress/", b.authed(b.progress))
	return mux
}

func (b *fakeBackend) mintAccess() string {
	b.serial++
	b.uses = 0
	b.access = fmt.Sprintf("access-%d", b.serial)
	return b.access
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	access := b.mintAccess()
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id": 1, "username": "alice", "email": "alice@example.com",
			"profile": map[string]any{"name": "Alice", "role": "student"},
		},
		"tokens": map[string]string{"access": access, "refresh": "refresh-1"},
	})
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if json.NewDecoder(r.Body).Decode(&body) != nil || body.Refresh != "refresh-1" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	b.mu.Lock()
	access := b.mintAccess()
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (b *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+b.access && b.uses < accessTokenUses
		if ok {
			b.uses++
		}
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id": 1, "username": "alice", "email": "alice@example.com",
		"profile": map[string]any{"name": "Alice", "role": "student"},
	})
}

func (b *fakeBackend) tutorials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{"id": 1, "title": "Intro to Go", "content_count": 2},
		{"id": 2, "title": "Advanced Go", "content_count": 5},
	})
}

func (b *fakeBackend) tutorial(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id": 1, "title": "Intro to Go",
		"contents": []map[string]any{{"id": 101, "order": 1, "title": "Hello", "content_type": "text"}},
	})
}

func (b *fakeBackend) progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"percentage": "50.00", "completed": false, "completed_content_ids": []int64{101},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
