package classify

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"ufwinspector/pkg/models"
)

// ErrIndeterminate is returned for address strings that do not parse.
var ErrIndeterminate = errors.New("address cannot be classified")

var (
	sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")
	reservedPrefixes   = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("240.0.0.0/4"),
		netip.MustParsePrefix("100::/64"),
	}
)

// Contribution is one public address credited by an event, with the role it
// played in that event.
type Contribution struct {
	Address string
	Role    models.Role
}

// EventClass is the classification of both sides of one event.
type EventClass struct {
	Contributions []Contribution
	Indeterminate int
	Private       int
}

// CacheStats reports classifier cache usage.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

type entry struct {
	info models.AddressInfo
	err  error
}

// Classifier classifies addresses and caches each result for the lifetime
// of the classifier. Construct one per analysis run.
type Classifier struct {
	mu        sync.RWMutex
	cache     map[string]entry
	announced map[string]struct{}

	hits   atomic.Int64
	misses atomic.Int64

	onFirstPublic func(address string)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFirstPublicHook registers fn to be called once for every distinct
// public address, the first time it is classified. fn is called without
// holding the cache lock.
func WithFirstPublicHook(fn func(address string)) Option {
	return func(c *Classifier) {
		c.onFirstPublic = fn
	}
}

// New creates an empty classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		cache:     make(map[string]entry),
		announced: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the classification of raw. Results, including failures,
// are computed once per distinct input string.
func (c *Classifier) Classify(raw string) (models.AddressInfo, error) {
	c.mu.RLock()
	e, ok := c.cache[raw]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e.info, e.err
	}

	c.mu.Lock()
	if e, ok := c.cache[raw]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return e.info, e.err
	}
	info, err := Address(raw)
	c.cache[raw] = entry{info: info, err: err}
	c.misses.Add(1)

	announce := false
	if err == nil && info.IsPublic {
		if _, seen := c.announced[info.Address]; !seen {
			c.announced[info.Address] = struct{}{}
			announce = true
		}
	}
	c.mu.Unlock()

	if announce && c.onFirstPublic != nil {
		c.onFirstPublic(info.Address)
	}
	return info, err
}

// ClassifyEvent classifies both addresses of ev and returns the public
// addresses it contributes. A public address on both sides yields a single
// RoleBoth contribution.
func (c *Classifier) ClassifyEvent(ev models.Event) EventClass {
	var out EventClass
	src := c.publicAddress(ev.Source, &out)
	dst := c.publicAddress(ev.Destination, &out)

	switch {
	case src != "" && src == dst:
		out.Contributions = append(out.Contributions, Contribution{Address: src, Role: models.RoleBoth})
	default:
		if src != "" {
			out.Contributions = append(out.Contributions, Contribution{Address: src, Role: models.RoleSource})
		}
		if dst != "" {
			out.Contributions = append(out.Contributions, Contribution{Address: dst, Role: models.RoleDestination})
		}
	}
	return out
}

func (c *Classifier) publicAddress(raw string, out *EventClass) string {
	if raw == "" {
		return ""
	}
	info, err := c.Classify(raw)
	if err != nil {
		out.Indeterminate++
		return ""
	}
	if !info.IsPublic {
		out.Private++
		return ""
	}
	return info.Address
}

// Stats returns cache counters.
func (c *Classifier) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.cache)
	c.mu.RUnlock()
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}

// Address classifies a single address string without caching.
func Address(raw string) (models.AddressInfo, error) {
	text := strings.TrimSpace(strings.Trim(raw, "[]"))
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return models.AddressInfo{}, fmt.Errorf("%w: %q", ErrIndeterminate, raw)
	}
	addr = addr.WithZone("").Unmap()

	scope := Scope(addr)
	return models.AddressInfo{
		Address:  addr.String(),
		Scope:    scope,
		IsPublic: scope == models.ScopePublic,
	}, nil
}

// Scope returns the routing scope of addr.
func Scope(addr netip.Addr) models.Scope {
	switch {
	case addr.IsUnspecified():
		return models.ScopeUnspecified
	case addr.IsLoopback():
		return models.ScopeLoopback
	case addr.IsLinkLocalUnicast():
		return models.ScopeLinkLocal
	case addr.IsMulticast():
		return models.ScopeMulticast
	case addr.IsPrivate(), sharedAddressSpace.Contains(addr):
		return models.ScopePrivate
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return models.ScopeReserved
		}
	}
	if !addr.IsGlobalUnicast() {
		return models.ScopeReserved
	}
	return models.ScopePublic
}
