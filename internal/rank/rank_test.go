package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufwinspector/pkg/models"
)

func rec(addr string, t models.EventType, count int) *models.AggregateRecord {
	return &models.AggregateRecord{Address: addr, EventType: t, Count: count}
}

func addresses(b models.Bucket) []string {
	var out []string
	for _, r := range b.Records {
		out = append(out, r.Address)
	}
	return out
}

func TestPresentUngroupedOrdering(t *testing.T) {
	records := []*models.AggregateRecord{
		rec("198.51.100.9", models.EventAll, 1),
		rec("203.0.113.5", models.EventAll, 3),
		rec("9.9.9.9", models.EventAll, 1),
		rec("2606:4700::1111", models.EventAll, 1),
		rec("10.0.0.0", models.EventAll, 3),
	}
	buckets := Present(records, Options{})
	require.Len(t, buckets, 1)
	assert.Equal(t, models.EventAll, buckets[0].EventType)
	assert.Equal(t, []string{"10.0.0.0", "203.0.113.5", "9.9.9.9", "198.51.100.9", "2606:4700::1111"}, addresses(buckets[0]))
}

func TestPresentGroupedCanonicalOrder(t *testing.T) {
	records := []*models.AggregateRecord{
		rec("8.8.8.8", models.EventAudit, 2),
		rec("8.8.8.8", models.EventBlock, 1),
		rec("1.1.1.1", models.EventBlock, 4),
		rec("1.1.1.1", models.EventAllow, 1),
	}
	buckets := Present(records, Options{GroupByEventType: true})

	var types []models.EventType
	for _, b := range buckets {
		types = append(types, b.EventType)
	}
	assert.Equal(t, []models.EventType{models.EventBlock, models.EventAllow, models.EventAudit}, types)
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, addresses(buckets[0]))
}

func TestPresentLimit(t *testing.T) {
	records := []*models.AggregateRecord{
		rec("1.1.1.1", models.EventAll, 1),
		rec("1.1.1.2", models.EventAll, 5),
		rec("1.1.1.3", models.EventAll, 3),
	}
	buckets := Present(records, Options{Limit: 2})
	require.Len(t, buckets, 1)
	assert.Equal(t, []string{"1.1.1.2", "1.1.1.3"}, addresses(buckets[0]))
	assert.Len(t, records, 3)
}

func TestPresentEmpty(t *testing.T) {
	assert.Empty(t, Present(nil, Options{}))
	assert.Empty(t, Present(nil, Options{GroupByEventType: true}))
}

func TestPresentDeterministic(t *testing.T) {
	records := []*models.AggregateRecord{
		rec("203.0.113.7", models.EventAll, 2),
		rec("203.0.113.6", models.EventAll, 2),
		rec("203.0.113.5", models.EventAll, 2),
	}
	first := Present(records, Options{})
	reversed := []*models.AggregateRecord{records[2], records[1], records[0]}
	assert.Equal(t, first, Present(reversed, Options{}))
}

func TestCompareAddresses(t *testing.T) {
	assert.Negative(t, CompareAddresses("9.9.9.9", "10.0.0.1"))
	assert.Negative(t, CompareAddresses("255.255.255.255", "::1"))
	assert.Negative(t, CompareAddresses("8.8.8.8", "zzz"))
	assert.Positive(t, CompareAddresses("b", "a"))
	assert.Zero(t, CompareAddresses("8.8.8.8", "8.8.8.8"))
}
