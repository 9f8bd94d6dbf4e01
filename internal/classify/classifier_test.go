package classify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufwinspector/pkg/models"
)

func TestAddressScopes(t *testing.T) {
	cases := map[string]models.Scope{
		"8.8.8.8":           models.ScopePublic,
		"203.0.113.5":       models.ScopePublic,
		"198.51.100.9":      models.ScopePublic,
		"2606:4700::1111":   models.ScopePublic,
		"10.0.0.2":          models.ScopePrivate,
		"172.16.5.4":        models.ScopePrivate,
		"192.168.1.1":       models.ScopePrivate,
		"100.64.1.1":        models.ScopePrivate,
		"fd00::1":           models.ScopePrivate,
		"127.0.0.1":         models.ScopeLoopback,
		"::1":               models.ScopeLoopback,
		"169.254.10.1":      models.ScopeLinkLocal,
		"fe80::1":           models.ScopeLinkLocal,
		"224.0.0.251":       models.ScopeMulticast,
		"239.255.255.250":   models.ScopeMulticast,
		"ff02::fb":          models.ScopeMulticast,
		"0.0.0.0":           models.ScopeUnspecified,
		"::":                models.ScopeUnspecified,
		"0.1.2.3":           models.ScopeReserved,
		"255.255.255.255":   models.ScopeReserved,
		"::ffff:10.1.2.3":   models.ScopePrivate,
		"::ffff:8.8.4.4":    models.ScopePublic,
		"[2001:4860::8888]": models.ScopePublic,
	}
	for raw, want := range cases {
		info, err := Address(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, info.Scope, raw)
		assert.Equal(t, want == models.ScopePublic, info.IsPublic, raw)
	}
}

func TestAddressCanonicalizesZeroPaddedIPv6(t *testing.T) {
	info, err := Address("2001:4860:0000:0000:0000:0000:0000:8888")
	require.NoError(t, err)
	assert.Equal(t, "2001:4860::8888", info.Address)
	assert.True(t, info.IsPublic)
}

func TestAddressIndeterminate(t *testing.T) {
	for _, raw := range []string{"not-an-ip", "300.1.1.1", "1.2.3", "010.001.002.003"} {
		_, err := Address(raw)
		assert.ErrorIs(t, err, ErrIndeterminate, raw)
	}
}

func TestClassifyCachesResults(t *testing.T) {
	c := New()

	first, err := c.Classify("8.8.8.8")
	require.NoError(t, err)
	second, err := c.Classify("8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)
}

func TestClassifyCachesFailures(t *testing.T) {
	c := New()
	_, err1 := c.Classify("bogus")
	_, err2 := c.Classify("bogus")
	assert.ErrorIs(t, err1, ErrIndeterminate)
	assert.ErrorIs(t, err2, ErrIndeterminate)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestFirstPublicHookFiresOncePerAddress(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	c := New(WithFirstPublicHook(func(addr string) {
		mu.Lock()
		seen[addr]++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Classify("8.8.8.8")
			c.Classify("10.0.0.1")
			c.Classify("2001:4860:0000:0000:0000:0000:0000:8888")
			c.Classify("2001:4860::8888")
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"8.8.8.8": 1, "2001:4860::8888": 1}, seen)
	assert.Equal(t, int64(4), c.Stats().Misses)
}

func TestClassifyEventRoles(t *testing.T) {
	c := New()

	got := c.ClassifyEvent(models.Event{Source: "203.0.113.5", Destination: "10.0.0.2"})
	assert.Equal(t, []Contribution{{Address: "203.0.113.5", Role: models.RoleSource}}, got.Contributions)
	assert.Equal(t, 1, got.Private)

	got = c.ClassifyEvent(models.Event{Source: "10.0.0.2", Destination: "1.1.1.1"})
	assert.Equal(t, []Contribution{{Address: "1.1.1.1", Role: models.RoleDestination}}, got.Contributions)

	got = c.ClassifyEvent(models.Event{Source: "8.8.8.8", Destination: "1.1.1.1"})
	assert.Equal(t, []Contribution{
		{Address: "8.8.8.8", Role: models.RoleSource},
		{Address: "1.1.1.1", Role: models.RoleDestination},
	}, got.Contributions)

	got = c.ClassifyEvent(models.Event{Source: "8.8.8.8", Destination: "8.8.8.8"})
	assert.Equal(t, []Contribution{{Address: "8.8.8.8", Role: models.RoleBoth}}, got.Contributions)

	got = c.ClassifyEvent(models.Event{Source: "garbage", Destination: "127.0.0.1"})
	assert.Empty(t, got.Contributions)
	assert.Equal(t, 1, got.Indeterminate)
	assert.Equal(t, 1, got.Private)

	got = c.ClassifyEvent(models.Event{})
	assert.Empty(t, got.Contributions)
	assert.Zero(t, got.Indeterminate)
}
