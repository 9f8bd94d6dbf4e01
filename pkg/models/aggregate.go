package models

import "time"

// AggregateRecord summarizes one public address, optionally within one
// event-type bucket.
type AggregateRecord struct {
	Address    string           `json:"address"`
	DomainName string           `json:"domain_name,omitempty"`
	Resolution ResolutionStatus `json:"resolution"`
	ISP        string           `json:"isp,omitempty"`
	Role       Role             `json:"role"`
	EventType  EventType        `json:"event_type"`
	Count      int              `json:"count"`

	SourceCount      int         `json:"source_count"`
	DestCount        int         `json:"dest_count"`
	EventTypes       []EventType `json:"event_types,omitempty"`
	SourceEventTypes []EventType `json:"source_event_types,omitempty"`
	DestEventTypes   []EventType `json:"dest_event_types,omitempty"`
	Protocols        []string    `json:"protocols,omitempty"`
	Ports            []int       `json:"ports,omitempty"`
	FirstSeen        time.Time   `json:"first_seen,omitempty"`
	LastSeen         time.Time   `json:"last_seen,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
}

// Bucket is one ordered group of records handed to a renderer.
type Bucket struct {
	EventType EventType          `json:"event_type"`
	Records   []*AggregateRecord `json:"records"`
}

// Stats reports what a run processed and what it had to skip.
type Stats struct {
	TotalLines             int  `json:"total_lines"`
	ParsedEvents           int  `json:"parsed_events"`
	SkippedLines           int  `json:"skipped_lines"`
	IndeterminateAddresses int  `json:"indeterminate_addresses"`
	PrivateAddressHits     int  `json:"private_address_hits"`
	PublicAddresses        int  `json:"public_addresses"`
	ResolutionFailures     int  `json:"resolution_failures"`
	Canceled               bool `json:"canceled"`
}

// Summary is the complete, ordered result of one analysis run.
type Summary struct {
	RunID   string   `json:"run_id"`
	Source  string   `json:"source"`
	Grouped bool     `json:"grouped"`
	Buckets []Bucket `json:"buckets"`
	Stats   Stats    `json:"stats"`
}

// Records returns every record across buckets in presentation order.
func (s *Summary) Records() []*AggregateRecord {
	if s == nil {
		return nil
	}
	var out []*AggregateRecord
	for _, b := range s.Buckets {
		out = append(out, b.Records...)
	}
	return out
}
