package aggregate

import (
	"cmp"
	"slices"
	"time"

	"ufwinspector/internal/classify"
	"ufwinspector/pkg/models"
)

type key struct {
	address   string
	eventType models.EventType
}

// Aggregator folds event contributions into one record per address, or per
// (address, event type) when grouping by type. Every field combines
// commutatively, so shards can be merged in any order.
//
// An Aggregator is not safe for concurrent use; give each worker its own
// and Merge them.
type Aggregator struct {
	groupByType bool
	records     map[key]*models.AggregateRecord
}

// New creates an empty aggregator.
func New(groupByType bool) *Aggregator {
	return &Aggregator{
		groupByType: groupByType,
		records:     make(map[key]*models.AggregateRecord),
	}
}

// Add credits ev to every contributed address.
func (a *Aggregator) Add(ev models.Event, contributions []classify.Contribution, tags ...string) {
	bucket := models.EventAll
	if a.groupByType {
		bucket = ev.Type
	}
	for _, c := range contributions {
		rec := a.record(key{address: c.Address, eventType: bucket})
		rec.Count++
		rec.Role |= c.Role
		if c.Role&models.RoleSource != 0 {
			rec.SourceCount++
			rec.SourceEventTypes = insertSorted(rec.SourceEventTypes, ev.Type, compareEventTypes)
		}
		if c.Role&models.RoleDestination != 0 {
			rec.DestCount++
			rec.DestEventTypes = insertSorted(rec.DestEventTypes, ev.Type, compareEventTypes)
		}
		rec.EventTypes = insertSorted(rec.EventTypes, ev.Type, compareEventTypes)
		if ev.Protocol != "" {
			rec.Protocols = insertSorted(rec.Protocols, ev.Protocol, cmp.Compare[string])
		}
		if ev.DestPort > 0 {
			rec.Ports = insertSorted(rec.Ports, ev.DestPort, cmp.Compare[int])
		}
		for _, tag := range tags {
			rec.Tags = insertSorted(rec.Tags, tag, cmp.Compare[string])
		}
		if ev.HasTimestamp() {
			observe(rec, ev.Timestamp, ev.Timestamp)
		}
	}
}

// Merge folds other into a. other must not be used afterwards.
func (a *Aggregator) Merge(other *Aggregator) {
	for k, src := range other.records {
		dst, ok := a.records[k]
		if !ok {
			a.records[k] = src
			continue
		}
		dst.Count += src.Count
		dst.Role |= src.Role
		dst.SourceCount += src.SourceCount
		dst.DestCount += src.DestCount
		dst.EventTypes = union(dst.EventTypes, src.EventTypes, compareEventTypes)
		dst.SourceEventTypes = union(dst.SourceEventTypes, src.SourceEventTypes, compareEventTypes)
		dst.DestEventTypes = union(dst.DestEventTypes, src.DestEventTypes, compareEventTypes)
		dst.Protocols = union(dst.Protocols, src.Protocols, cmp.Compare[string])
		dst.Ports = union(dst.Ports, src.Ports, cmp.Compare[int])
		dst.Tags = union(dst.Tags, src.Tags, cmp.Compare[string])
		if !src.FirstSeen.IsZero() {
			observe(dst, src.FirstSeen, src.LastSeen)
		}
	}
}

// Records returns the aggregated records in no particular order.
func (a *Aggregator) Records() []*models.AggregateRecord {
	out := make([]*models.AggregateRecord, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, rec)
	}
	return out
}

// Addresses returns the distinct addresses seen, sorted.
func (a *Aggregator) Addresses() []string {
	seen := make(map[string]struct{}, len(a.records))
	out := make([]string, 0, len(a.records))
	for k := range a.records {
		if _, ok := seen[k.address]; ok {
			continue
		}
		seen[k.address] = struct{}{}
		out = append(out, k.address)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	return len(a.records)
}

func (a *Aggregator) record(k key) *models.AggregateRecord {
	rec, ok := a.records[k]
	if !ok {
		rec = &models.AggregateRecord{Address: k.address, EventType: k.eventType}
		a.records[k] = rec
	}
	return rec
}

func observe(rec *models.AggregateRecord, first, last time.Time) {
	if rec.FirstSeen.IsZero() || first.Before(rec.FirstSeen) {
		rec.FirstSeen = first
	}
	if last.After(rec.LastSeen) {
		rec.LastSeen = last
	}
}

func compareEventTypes(a, b models.EventType) int {
	return cmp.Or(cmp.Compare(a.Rank(), b.Rank()), cmp.Compare(a, b))
}

func insertSorted[T comparable](s []T, v T, compare func(a, b T) int) []T {
	i, found := slices.BinarySearchFunc(s, v, compare)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}

func union[T comparable](dst, src []T, compare func(a, b T) int) []T {
	for _, v := range src {
		dst = insertSorted(dst, v, compare)
	}
	return dst
}
