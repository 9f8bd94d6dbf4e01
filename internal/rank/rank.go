package rank

import (
	"cmp"
	"net/netip"
	"slices"

	"ufwinspector/pkg/models"
)

// Options controls presentation.
type Options struct {
	GroupByEventType bool
	// Limit caps the records per bucket. Zero means no limit.
	Limit int
}

// Present orders records into buckets. With grouping, buckets follow the
// canonical event-type order and empty ones are omitted; without it there is
// a single ALL bucket. Within a bucket records are ordered by count
// descending, then by address ascending.
func Present(records []*models.AggregateRecord, opts Options) []models.Bucket {
	if !opts.GroupByEventType {
		if len(records) == 0 {
			return nil
		}
		return []models.Bucket{{EventType: models.EventAll, Records: order(records, opts.Limit)}}
	}

	byType := make(map[models.EventType][]*models.AggregateRecord)
	for _, rec := range records {
		byType[rec.EventType] = append(byType[rec.EventType], rec)
	}

	var buckets []models.Bucket
	for _, t := range models.CanonicalEventTypes {
		if recs := byType[t]; len(recs) > 0 {
			buckets = append(buckets, models.Bucket{EventType: t, Records: order(recs, opts.Limit)})
		}
	}
	return buckets
}

func order(records []*models.AggregateRecord, limit int) []*models.AggregateRecord {
	out := slices.Clone(records)
	slices.SortFunc(out, Compare)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Compare orders records by count descending, then address ascending. It is
// a total order over distinct addresses.
func Compare(a, b *models.AggregateRecord) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return CompareAddresses(a.Address, b.Address)
}

// CompareAddresses orders addresses numerically, IPv4 before IPv6, falling
// back to text order for anything that does not parse.
func CompareAddresses(a, b string) int {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return pa.Compare(pb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
