package models

import "time"

// EventType is the UFW action recorded on a log line.
type EventType string

const (
	EventBlock        EventType = "BLOCK"
	EventLimit        EventType = "LIMIT"
	EventAllow        EventType = "ALLOW"
	EventAudit        EventType = "AUDIT"
	EventUnrecognized EventType = "UNRECOGNIZED"

	// EventAll names the single bucket used when results are not grouped.
	EventAll EventType = "ALL"
)

// CanonicalEventTypes is the fixed bucket order for grouped output.
var CanonicalEventTypes = []EventType{EventBlock, EventLimit, EventAllow, EventAudit}

// Rank returns the position of t in CanonicalEventTypes, or len(CanonicalEventTypes)
// for types outside the canonical set.
func (t EventType) Rank() int {
	for i, c := range CanonicalEventTypes {
		if c == t {
			return i
		}
	}
	return len(CanonicalEventTypes)
}

// Event is one parsed UFW log record. It is passed by value and never
// modified after parsing.
type Event struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"ts,omitempty"`
	Source       string    `json:"src,omitempty"`
	Destination  string    `json:"dst,omitempty"`
	SourcePort   int       `json:"spt,omitempty"`
	DestPort     int       `json:"dpt,omitempty"`
	Protocol     string    `json:"proto,omitempty"`
	InInterface  string    `json:"in,omitempty"`
	OutInterface string    `json:"out,omitempty"`

	Raw string `json:"-"`
}

// HasTimestamp reports whether the line carried a parseable timestamp.
func (e Event) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}
