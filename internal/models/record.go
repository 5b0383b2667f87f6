package models

// Address is the content address of a stored record: the lowercase hex
// encoding of a 32-byte digest.
type Address string

// String returns the address as a plain string.
func (a Address) String() string {
	return string(a)
}

// Kind tags the entry carried by a record.
type Kind string

const (
	KindAgentProfile Kind = "agent_profile"
	KindJob          Kind = "job"
	KindPhaseEvent   Kind = "phase_event"
	KindAnchor       Kind = "anchor"
)

// Record is the envelope the record store persists. Payload is the
// CBOR encoding of the typed entry. Author and Timestamp take part in the
// content address, so two registrations of identical profiles stay distinct.
type Record struct {
	Kind      Kind   `json:"kind" cbor:"kind"`
	Author    string `json:"author,omitempty" cbor:"author"`
	Timestamp uint64 `json:"timestamp,omitempty" cbor:"timestamp"` // Unix µs
	Payload   []byte `json:"payload" cbor:"payload"`
}

// Anchor is the entry of a well-known record used only as a link base.
type Anchor struct {
	Path string `json:"path" cbor:"path"`
}

// LinkType names an index relationship.
type LinkType string

const (
	LinkAgentToProfile LinkType = "agent_to_profile"
	LinkAllAgents      LinkType = "all_agents"
	LinkAgentToJobs    LinkType = "agent_to_jobs"
	LinkJobToEvents    LinkType = "job_to_events"
)

// Link is a directed, typed edge from a base (identity key or address)
// to a target record.
type Link struct {
	Base      string   `json:"base" cbor:"base"`
	Target    Address  `json:"target" cbor:"target"`
	Type      LinkType `json:"type" cbor:"type"`
	Author    string   `json:"author,omitempty" cbor:"author"`
	Timestamp uint64   `json:"timestamp" cbor:"timestamp"` // Unix µs
}
