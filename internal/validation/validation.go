// Package validation decides whether a record may enter the record store.
//
// Every function here depends only on the record's own fields: no caller
// identity, clock or store state. Peers that receive a record later can
// therefore re-run the same checks and reach the same verdict.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/acp/internal/codec"
	"github.com/eldtechnologies/acp/internal/models"
)

const (
	walletAddressLength = 42
	txHashLength        = 66
)

// Result is the verdict for a candidate record. A zero Result is Valid.
type Result struct {
	Kind   models.Kind
	Reason string
}

// Valid reports whether the record was accepted.
func (r Result) Valid() bool {
	return r.Reason == ""
}

// Err converts an Invalid result into an *Error and a Valid one into nil.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{Kind: r.Kind, Reason: r.Reason}
}

func invalid(kind models.Kind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}

// Error is returned by the record store when a record fails validation.
type Error struct {
	Kind   models.Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

// IsInvalid reports whether err (or anything it wraps) is a validation error.
func IsInvalid(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

// Reason extracts the human-readable reason from a validation error.
func Reason(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}

// IsWalletAddress reports whether s has the wallet address shape: "0x"
// followed by 40 characters.
func IsWalletAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) == walletAddressLength
}

// IsTxHash reports whether s has the transaction hash shape: "0x"
// followed by 64 characters.
func IsTxHash(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) == txHashLength
}

// ValidateAgentProfile checks a profile entry.
func ValidateAgentProfile(p models.AgentProfile) Result {
	if !IsWalletAddress(p.WalletAddress) {
		return invalid(models.KindAgentProfile, "wallet_address must be a valid Ethereum address (0x... 42 chars)")
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid(models.KindAgentProfile, "name cannot be empty")
	}
	return Result{}
}

// ValidateJob checks a job entry. Rules run in a fixed order and the
// first failure is the only one reported.
func ValidateJob(j models.Job) Result {
	if !IsTxHash(j.EscrowHash) {
		return invalid(models.KindJob, "escrow_hash must be a valid transaction hash (0x... 66 chars)")
	}
	if !IsWalletAddress(j.AgentWalletAddress) {
		return invalid(models.KindJob, "agent_wallet_address must be a valid Ethereum address")
	}
	if len(j.Phases) == 0 {
		return invalid(models.KindJob, "phases cannot be empty")
	}
	if strings.TrimSpace(j.JobID) == "" {
		return invalid(models.KindJob, "job_id cannot be empty")
	}
	if !models.Phase(j.CurrentPhase).IsKnown() {
		return invalid(models.KindJob, "current_phase must be one of: "+models.PhaseList())
	}
	return Result{}
}

// ValidatePhaseEvent checks a phase event entry. Whether the transition
// is legal depends on the other events of the job, so it is decided when
// the history is folded, not here.
func ValidatePhaseEvent(e models.PhaseEvent) Result {
	if strings.TrimSpace(e.EventID) == "" {
		return invalid(models.KindPhaseEvent, "event_id cannot be empty")
	}
	if !codec.IsAddress(string(e.JobAddress)) {
		return invalid(models.KindPhaseEvent, "job_address must be a record address (64 hex chars)")
	}
	phase := models.Phase(e.Phase)
	if !phase.IsKnown() || phase == models.PhaseRequested {
		return invalid(models.KindPhaseEvent, "phase must be one of: negotiation, transaction, completed, rejected")
	}
	if e.Deliverable != nil && phase != models.PhaseCompleted {
		return invalid(models.KindPhaseEvent, "deliverable is only allowed on the completed phase")
	}
	return Result{}
}

// ValidateRecord dispatches on the record's kind tag. A profile, job or
// phase event payload must decode strictly (no unknown fields, valid UTF-8)
// as that entry before its rules run; a payload that does not is Invalid.
// Records of other kinds share the store and pass through as Valid.
func ValidateRecord(rec models.Record) Result {
	switch rec.Kind {
	case models.KindAgentProfile:
		var p models.AgentProfile
		if err := codec.UnmarshalStrict(rec.Payload, &p); err != nil {
			return undecodable(rec.Kind, err)
		}
		return ValidateAgentProfile(p)
	case models.KindJob:
		var j models.Job
		if err := codec.UnmarshalStrict(rec.Payload, &j); err != nil {
			return undecodable(rec.Kind, err)
		}
		return ValidateJob(j)
	case models.KindPhaseEvent:
		var e models.PhaseEvent
		if err := codec.UnmarshalStrict(rec.Payload, &e); err != nil {
			return undecodable(rec.Kind, err)
		}
		return ValidatePhaseEvent(e)
	}
	return Result{}
}

func undecodable(kind models.Kind, err error) Result {
	return invalid(kind, fmt.Sprintf("payload is not a valid %s entry: %v", kind, err))
}

// ValidateLink checks a link. Every link type is currently accepted.
func ValidateLink(models.Link) Result {
	return Result{}
}
