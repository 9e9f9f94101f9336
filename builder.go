package techmate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/techmate/techmate-go/session"
)

// Builder assembles a [Client]. Construction is allocation-only; the first
// network call happens when a Client method is invoked.
type Builder struct {
	config  Config
	baseURL string
	httpc   *http.Client
	store   session.Store
	sink    AuditSink
	expired func(ctx context.Context, cause error)

	built bool
}

// New starts a builder with the default configuration.
func New(baseURL string) *Builder {
	return &Builder{
		config:  defaultConfig(),
		baseURL: baseURL,
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithHTTPClient supplies the underlying transport. The client's Timeout is
// overridden by Config.HTTP.Timeout when set.
func (b *Builder) WithHTTPClient(httpc *http.Client) *Builder {
	b.httpc = httpc
	return b
}

// WithStore supplies the durable session store. Defaults to an in-memory
// store, which means sessions do not survive a restart.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithAuditSink supplies the audit destination. Implies nothing unless
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithSessionExpiredHandler registers the callback invoked after a forced
// session teardown — the process-level analogue of a redirect to the login
// page. The handler runs on the goroutine that hit the failure; keep it
// short.
func (b *Builder) WithSessionExpiredHandler(fn func(ctx context.Context, cause error)) *Builder {
	b.expired = fn
	return b
}

// WithMetricsEnabled toggles metric counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and produces the Client. A builder can
// be used once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	base := strings.TrimRight(b.baseURL, "/")
	if base == "" {
		return nil, errors.New("base URL required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.New("base URL invalid")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpc := b.httpc
	if httpc == nil {
		httpc = &http.Client{}
	}
	if cfg.HTTP.Timeout > 0 {
		httpc.Timeout = cfg.HTTP.Timeout
	}

	store := b.store
	if store == nil {
		store = session.NewMemoryStore()
	}

	c := &Client{
		config:   cfg,
		baseURL:  base,
		httpc:    httpc,
		store:    store,
		validate: newValidator(),
		audit:    newAuditDispatcher(cfg.Audit, b.sink),
		metrics:  NewMetrics(cfg.Metrics),
		expired:  b.expired,
	}

	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.FailureThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "techmate-gateway",
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	b.built = true

	return c, nil
}
