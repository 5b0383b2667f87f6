package models

import "strings"

// Phase is a step of the job lifecycle.
type Phase string

const (
	PhaseRequested   Phase = "requested"
	PhaseNegotiation Phase = "negotiation"
	PhaseTransaction Phase = "transaction"
	PhaseCompleted   Phase = "completed"
	PhaseRejected    Phase = "rejected"
)

// AllPhases lists every phase a job can be in, in lifecycle order.
var AllPhases = []Phase{
	PhaseRequested,
	PhaseNegotiation,
	PhaseTransaction,
	PhaseCompleted,
	PhaseRejected,
}

// InitialPhases is the phase plan recorded on every new job.
var InitialPhases = []string{
	string(PhaseRequested),
	string(PhaseNegotiation),
	string(PhaseTransaction),
}

// IsKnown reports whether p is one of AllPhases.
func (p Phase) IsKnown() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseRejected
}

// transitions holds the legal next phases for each phase.
var transitions = map[Phase][]Phase{
	PhaseRequested:   {PhaseNegotiation, PhaseRejected},
	PhaseNegotiation: {PhaseTransaction, PhaseRejected},
	PhaseTransaction: {PhaseCompleted, PhaseRejected},
}

// CanAdvanceTo reports whether a job in phase p may move to next.
func (p Phase) CanAdvanceTo(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PhaseList renders AllPhases as "a, b, c".
func PhaseList() string {
	names := make([]string, len(AllPhases))
	for i, p := range AllPhases {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// Job is the immutable provenance entry recorded when a job is requested.
type Job struct {
	JobID               string   `json:"job_id" cbor:"job_id"`
	Phases              []string `json:"phases" cbor:"phases"`
	EscrowHash          string   `json:"escrow_hash" cbor:"escrow_hash"`
	AgentWalletAddress  string   `json:"agent_wallet_address" cbor:"agent_wallet_address"`
	JobOfferingName     string   `json:"job_offering_name" cbor:"job_offering_name"`
	ServiceRequirements string   `json:"service_requirements" cbor:"service_requirements"` // canonical JSON
	CreatedAt           uint64   `json:"created_at" cbor:"created_at"`                     // Unix µs
	CurrentPhase        string   `json:"current_phase" cbor:"current_phase"`
	Deliverable         *string  `json:"deliverable" cbor:"deliverable"`
}

// JobCreationInput is what a caller supplies to request a job.
type JobCreationInput struct {
	AgentWalletAddress  string            `json:"agent_wallet_address"`
	JobOfferingName     string            `json:"job_offering_name"`
	ServiceRequirements map[string]string `json:"service_requirements"`
	EscrowHash          string            `json:"escrow_hash"`
}

// PhaseEvent records that a job moved to a new phase. Jobs are never
// rewritten; their progress is the sequence of events linked from them.
type PhaseEvent struct {
	EventID     string  `json:"event_id" cbor:"event_id"`
	JobAddress  Address `json:"job_address" cbor:"job_address"`
	Phase       string  `json:"phase" cbor:"phase"`
	Deliverable *string `json:"deliverable" cbor:"deliverable"`
	RecordedAt  uint64  `json:"recorded_at" cbor:"recorded_at"` // Unix µs
}

// Transition is the caller input for advancing a job.
type Transition struct {
	Phase       string  `json:"phase"`
	Deliverable *string `json:"deliverable,omitempty"`
}

// JobHistory is a job plus the events that apply to it, with the
// phase and deliverable they fold to.
type JobHistory struct {
	Address      Address      `json:"address"`
	Job          Job          `json:"job"`
	Events       []PhaseEvent `json:"events"`
	CurrentPhase string       `json:"current_phase"`
	Deliverable  *string      `json:"deliverable"`
}
