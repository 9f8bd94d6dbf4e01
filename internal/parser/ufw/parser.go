package ufw

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ufwinspector/pkg/models"
)

var (
	// ErrEmptyLine is returned for blank input lines.
	ErrEmptyLine = errors.New("empty line")
	// ErrUnrecognized is returned for lines without a UFW event marker.
	ErrUnrecognized = errors.New("no UFW event marker")
)

// ParseError describes a line that produced no event. It is an expected
// outcome for non-UFW lines, not a fault.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse ufw line: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const syslogLayout = "Jan 2 15:04:05"

// Parser converts UFW kernel log lines into events. It holds no
// per-line state and is safe for concurrent use.
type Parser struct {
	year int
	loc  *time.Location
}

// Option configures a Parser.
type Option func(*Parser)

// WithReferenceYear sets the year assigned to syslog timestamps, which
// carry none.
func WithReferenceYear(year int) Option {
	return func(p *Parser) {
		p.year = year
	}
}

// WithLocation sets the zone for syslog timestamps.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		year: time.Now().Year(),
		loc:  time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts one line into an event. Lines without a UFW marker
// return a *ParseError wrapping ErrUnrecognized.
func (p *Parser) Parse(line string) (models.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Event{}, &ParseError{Line: line, Err: ErrEmptyLine}
	}

	fields := strings.Fields(line)
	eventType, next := findMarker(fields)
	if eventType == models.EventUnrecognized {
		return models.Event{Type: models.EventUnrecognized, Raw: line}, &ParseError{Line: line, Err: ErrUnrecognized}
	}

	event := models.Event{
		Type:      eventType,
		Timestamp: p.parseTimestamp(fields),
		Raw:       line,
	}

	seen := make(map[string]bool, 8)
	for _, tok := range fields[next:] {
		if strings.HasPrefix(tok, "[") {
			// embedded packet of an ICMP error
			break
		}
		key, value, ok := strings.Cut(tok, "=")
		if !ok || value == "" || seen[key] {
			continue
		}
		switch key {
		case "SRC":
			event.Source = value
		case "DST":
			event.Destination = value
		case "SPT":
			port, ok := parsePort(value)
			if !ok {
				continue
			}
			event.SourcePort = port
		case "DPT":
			port, ok := parsePort(value)
			if !ok {
				continue
			}
			event.DestPort = port
		case "PROTO":
			event.Protocol = value
		case "IN":
			event.InInterface = value
		case "OUT":
			event.OutInterface = value
		default:
			continue
		}
		seen[key] = true
	}

	return event, nil
}

// findMarker locates "UFW <TYPE>" (bracketed or not) and returns the type
// and the index of the first token after the marker.
func findMarker(fields []string) (models.EventType, int) {
	for i := 0; i+1 < len(fields); i++ {
		if strings.TrimPrefix(fields[i], "[") != "UFW" {
			continue
		}
		action := strings.TrimSuffix(fields[i+1], "]")
		switch action {
		case "BLOCK":
			return models.EventBlock, i + 2
		case "ALLOW":
			return models.EventAllow, i + 2
		case "AUDIT":
			if i+2 < len(fields) && strings.TrimSuffix(fields[i+2], "]") == "INVALID" {
				return models.EventAudit, i + 3
			}
			return models.EventAudit, i + 2
		case "LIMIT":
			if i+2 < len(fields) && strings.TrimSuffix(fields[i+2], "]") == "BLOCK" {
				return models.EventLimit, i + 3
			}
			return models.EventLimit, i + 2
		}
	}
	return models.EventUnrecognized, 0
}

func (p *Parser) parseTimestamp(fields []string) time.Time {
	if len(fields) == 0 {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, fields[0]); err == nil {
			return t
		}
	}
	if len(fields) < 3 {
		return time.Time{}
	}
	t, err := time.Parse(syslogLayout, fields[0]+" "+fields[1]+" "+fields[2])
	if err != nil {
		return time.Time{}
	}
	return time.Date(p.year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.loc)
}

func parsePort(value string) (int, bool) {
	port, err := strconv.Atoi(value)
	if err != nil || port < 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
