package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufwinspector/pkg/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	names    map[string][]string
	errs     map[string]error
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: map[string]int{},
		names: map[string][]string{},
		errs:  map[string]error{},
	}
}

func (f *fakeBackend) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[addr]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[addr]; ok {
		return nil, err
	}
	return f.names[addr], nil
}

func (f *fakeBackend) callsFor(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr]
}

func TestResolveSuccessTrimsTrailingDot(t *testing.T) {
	b := newFakeBackend()
	b.names["8.8.8.8"] = []string{"dns.google."}
	r := New(b, Config{})

	res := r.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, models.Resolution{Name: "dns.google", Status: models.ResolutionResolved}, res)

	cached, ok := r.Lookup("8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, res, cached)
}

func TestResolveConcurrentCallersShareOneLookup(t *testing.T) {
	b := newFakeBackend()
	b.names["203.0.113.5"] = []string{"host.example.net."}
	b.delay = 20 * time.Millisecond
	r := New(b, Config{Timeout: time.Second})

	var wg sync.WaitGroup
	results := make([]models.Resolution, 40)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "203.0.113.5")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, b.callsFor("203.0.113.5"))
	assert.Equal(t, int64(1), r.Calls())
	for _, res := range results {
		assert.Equal(t, "host.example.net", res.Name)
	}
}

func TestResolveTimeout(t *testing.T) {
	b := newFakeBackend()
	b.delay = time.Second
	r := New(b, Config{Timeout: 10 * time.Millisecond})

	start := time.Now()
	res := r.Resolve(context.Background(), "198.51.100.9")
	assert.Equal(t, models.ResolutionTimedOut, res.Status)
	assert.Empty(t, res.Name)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// Failures are cached too.
	r.Resolve(context.Background(), "198.51.100.9")
	assert.Equal(t, int64(1), r.Calls())
}

func TestResolveErrorStatuses(t *testing.T) {
	b := newFakeBackend()
	b.errs["1.1.1.1"] = &net.DNSError{Err: "no such host", Name: "1.1.1.1", IsNotFound: true}
	b.errs["1.0.0.1"] = &net.DNSError{Err: "i/o timeout", Name: "1.0.0.1", IsTimeout: true}
	b.errs["9.9.9.9"] = errors.New("connection refused")
	r := New(b, Config{})

	ctx := context.Background()
	assert.Equal(t, models.ResolutionNotFound, r.Resolve(ctx, "1.1.1.1").Status)
	assert.Equal(t, models.ResolutionTimedOut, r.Resolve(ctx, "1.0.0.1").Status)
	assert.Equal(t, models.ResolutionFailed, r.Resolve(ctx, "9.9.9.9").Status)
	assert.Equal(t, models.ResolutionNotFound, r.Resolve(ctx, "8.8.4.4").Status)
}

func TestResolveBoundsInFlightLookups(t *testing.T) {
	b := newFakeBackend()
	b.delay = 10 * time.Millisecond
	r := New(b, Config{Timeout: 5 * time.Second, MaxConcurrent: 3})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := net.IPv4(8, 8, 0, byte(i)).String()
			r.Resolve(context.Background(), addr)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, b.peak.Load(), int32(3))
	assert.Equal(t, int64(20), r.Calls())
}

func TestResolveQueuedLookupsGetFullTimeout(t *testing.T) {
	b := newFakeBackend()
	b.delay = 40 * time.Millisecond
	r := New(b, Config{Timeout: 100 * time.Millisecond, MaxConcurrent: 2})

	addrs := make([]string, 12)
	for i := range addrs {
		addrs[i] = net.IPv4(203, 0, 113, byte(i+1)).String()
		b.names[addrs[i]] = []string{fmt.Sprintf("host%d.example.net.", i+1)}
	}

	var wg sync.WaitGroup
	results := make([]models.Resolution, len(addrs))
	for i, addr := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), addr)
		}()
	}
	wg.Wait()

	for i, addr := range addrs {
		assert.Equal(t, models.ResolutionResolved, results[i].Status, addr)
		assert.Equal(t, fmt.Sprintf("host%d.example.net", i+1), results[i].Name, addr)
		assert.Equal(t, 1, b.callsFor(addr), addr)
	}
	assert.LessOrEqual(t, b.peak.Load(), int32(2))
}

func TestResolveQueuedLookupStopsWhenCanceled(t *testing.T) {
	b := newFakeBackend()
	b.delay = time.Second
	r := New(b, Config{Timeout: 5 * time.Second, MaxConcurrent: 1})

	ctx, cancel := context.WithCancel(context.Background())
	held := make(chan models.Resolution, 1)
	go func() { held <- r.Resolve(ctx, "8.8.8.8") }()
	require.Eventually(t, func() bool { return b.callsFor("8.8.8.8") == 1 }, time.Second, time.Millisecond)

	queued := make(chan models.Resolution, 1)
	go func() { queued <- r.Resolve(ctx, "8.8.4.4") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.Equal(t, models.ResolutionTimedOut, (<-queued).Status)
	assert.Equal(t, models.ResolutionTimedOut, (<-held).Status)
	assert.Zero(t, b.callsFor("8.8.4.4"))
}

func TestResolveCanceledContext(t *testing.T) {
	b := newFakeBackend()
	b.delay = time.Second
	r := New(b, Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Resolve(ctx, "8.8.8.8")
	assert.Equal(t, models.ResolutionTimedOut, res.Status)
}

func TestSystemBackendDefaultsPort(t *testing.T) {
	assert.Equal(t, net.DefaultResolver, SystemBackend(""))
	custom, ok := SystemBackend("127.0.0.1").(*net.Resolver)
	require.True(t, ok)
	assert.True(t, custom.PreferGo)
}
