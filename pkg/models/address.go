package models

// Scope is the routing class of an address.
type Scope string

const (
	ScopePublic      Scope = "PUBLIC"
	ScopePrivate     Scope = "PRIVATE"
	ScopeLoopback    Scope = "LOOPBACK"
	ScopeLinkLocal   Scope = "LINK_LOCAL"
	ScopeMulticast   Scope = "MULTICAST"
	ScopeReserved    Scope = "RESERVED"
	ScopeUnspecified Scope = "UNSPECIFIED"
)

// Role records which side(s) of traffic an address appeared on.
type Role uint8

const (
	RoleUnknown     Role = 0
	RoleSource      Role = 1 << 0
	RoleDestination Role = 1 << 1
	RoleBoth             = RoleSource | RoleDestination
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "SOURCE"
	case RoleDestination:
		return "DESTINATION"
	case RoleBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// Direction returns the traffic direction wording used in reports.
func (r Role) Direction() string {
	switch r {
	case RoleSource:
		return "Incoming"
	case RoleDestination:
		return "Outgoing"
	case RoleBoth:
		return "Bidirectional"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResolutionStatus tells a missing domain name apart from a failed lookup.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = ""
	ResolutionResolved ResolutionStatus = "RESOLVED"
	ResolutionNotFound ResolutionStatus = "NOT_FOUND"
	ResolutionTimedOut ResolutionStatus = "TIMED_OUT"
	ResolutionFailed   ResolutionStatus = "FAILED"
	ResolutionSkipped  ResolutionStatus = "SKIPPED"
)

// Failed reports whether a lookup was attempted and produced no name.
func (s ResolutionStatus) Failed() bool {
	switch s {
	case ResolutionNotFound, ResolutionTimedOut, ResolutionFailed:
		return true
	}
	return false
}

// Resolution is the outcome of a reverse lookup.
type Resolution struct {
	Name   string           `json:"name,omitempty"`
	Status ResolutionStatus `json:"status"`
}

// AddressInfo is the per-run classification of one distinct address.
type AddressInfo struct {
	Address    string     `json:"address"`
	Scope      Scope      `json:"scope"`
	IsPublic   bool       `json:"is_public"`
	Role       Role       `json:"role"`
	DomainName string     `json:"domain_name,omitempty"`
	Resolution Resolution `json:"resolution"`
	ISP        string     `json:"isp,omitempty"`
}
