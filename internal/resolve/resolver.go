package resolve

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"ufwinspector/internal/flightcache"
	"ufwinspector/internal/logger"
	"ufwinspector/pkg/models"
)

const (
	DefaultTimeout       = 2 * time.Second
	DefaultMaxConcurrent = 16
)

// Backend performs reverse lookups.
type Backend interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Config holds resolver limits.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// Resolver performs reverse DNS lookups with a per-call timeout, a bound
// on in-flight lookups, and at most one backend call per address. The
// timeout starts once a lookup slot is held; waiting for a slot is bounded
// only by the caller's context.
type Resolver struct {
	backend Backend
	timeout time.Duration
	sem     *semaphore.Weighted
	cache   *flightcache.Cache[models.Resolution]
}

// New creates a resolver with an empty cache.
func New(backend Backend, cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Resolver{
		backend: backend,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cache:   flightcache.New[models.Resolution](),
	}
}

// Resolve returns the resolution for addr, performing the lookup if no
// result is cached yet. Concurrent callers for the same address share one
// backend call. Resolve never fails; failures are reported in the status.
func (r *Resolver) Resolve(ctx context.Context, addr string) models.Resolution {
	return r.cache.Get(addr, func() models.Resolution {
		return r.lookup(ctx, addr)
	})
}

// Lookup returns the cached resolution for addr, if any.
func (r *Resolver) Lookup(addr string) (models.Resolution, bool) {
	return r.cache.Peek(addr)
}

// Calls returns the number of backend lookups started.
func (r *Resolver) Calls() int64 {
	return r.cache.Loads()
}

type lookupResult struct {
	names []string
	err   error
}

func (r *Resolver) lookup(ctx context.Context, addr string) models.Resolution {
	// Queueing for a slot is bounded by the run, not by the lookup timeout.
	if err := r.sem.Acquire(ctx, 1); err != nil {
		logger.Debugf("resolver: no lookup slot for %s: %v", addr, err)
		return models.Resolution{Status: models.ResolutionTimedOut}
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The slot is held until the backend returns, even if we stop waiting.
	done := make(chan lookupResult, 1)
	go func() {
		defer r.sem.Release(1)
		names, err := r.backend.LookupAddr(lctx, addr)
		done <- lookupResult{names: names, err: err}
	}()

	select {
	case <-lctx.Done():
		logger.Debugf("resolver: lookup for %s timed out", addr)
		return models.Resolution{Status: models.ResolutionTimedOut}
	case res := <-done:
		if res.err != nil {
			status := statusFor(res.err)
			logger.Debugf("resolver: lookup for %s: %s (%v)", addr, status, res.err)
			return models.Resolution{Status: status}
		}
		for _, name := range res.names {
			if name = strings.TrimSuffix(strings.TrimSpace(name), "."); name != "" {
				return models.Resolution{Name: name, Status: models.ResolutionResolved}
			}
		}
		return models.Resolution{Status: models.ResolutionNotFound}
	}
}

func statusFor(err error) models.ResolutionStatus {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ResolutionTimedOut
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return models.ResolutionNotFound
		case dnsErr.IsTimeout:
			return models.ResolutionTimedOut
		}
	}
	return models.ResolutionFailed
}

// SystemBackend returns the platform resolver, or one that queries server
// ("host" or "host:port") directly when server is set.
func SystemBackend(server string) Backend {
	if server == "" {
		return net.DefaultResolver
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}
}
