package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// JobIDPrefix starts every job identifier.
const JobIDPrefix = "job_"

// NewJobID returns a job identifier built on a time-ordered UUID v7.
func NewJobID() string {
	return JobIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// NewEventID returns a lexically sortable ULID for a phase event.
func NewEventID() string {
	return ulid.Make().String()
}

// NewNonce returns a random 24-character request nonce.
func NewNonce() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto: reading random nonce: " + err.Error())
	}
	return hex.EncodeToString(b)
}
