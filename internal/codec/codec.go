// Package codec encodes records for the record store and derives their
// content addresses.
//
// Records are encoded with CBOR Core Deterministic Encoding (RFC 8949
// §4.2), so the same logical record always produces the same bytes and
// therefore the same address on every peer.
package codec

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/eldtechnologies/acp/internal/models"
)

var (
	encMode    cbor.EncMode
	decMode    cbor.DecMode
	strictMode cbor.DecMode
)

// recordDomainKey keys the BLAKE3 hash of record envelopes. Changing it
// changes every address.
var recordDomainKey = [32]byte{
	'a', 'c', 'p', '.', 'r', 'e', 'c', 'o', 'r', 'd',
}

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	// Entry decoding must tell an agent profile from a job, so fields the
	// target struct does not declare are an error.
	strictMode, err = cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		UTF8:              cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic("codec: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, ignoring unknown fields.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes data into v and fails on fields v does not declare.
func UnmarshalStrict(data []byte, v any) error {
	return strictMode.Unmarshal(data, v)
}

// NewRecord builds a record envelope around an encoded entry.
func NewRecord(kind models.Kind, author string, timestamp uint64, entry any) (models.Record, error) {
	payload, err := Marshal(entry)
	if err != nil {
		return models.Record{}, fmt.Errorf("encoding %s entry: %w", kind, err)
	}
	return models.Record{
		Kind:      kind,
		Author:    author,
		Timestamp: timestamp,
		Payload:   payload,
	}, nil
}

// EncodeRecord returns the stored form of rec.
func EncodeRecord(rec models.Record) ([]byte, error) {
	return Marshal(rec)
}

// DecodeRecord parses the stored form of a record.
func DecodeRecord(data []byte) (models.Record, error) {
	var rec models.Record
	if err := Unmarshal(data, &rec); err != nil {
		return models.Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// AddressOf computes the content address of rec.
func AddressOf(rec models.Record) (models.Address, error) {
	data, err := EncodeRecord(rec)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	return AddressOfBytes(data), nil
}

// AddressOfBytes computes the content address of an already encoded record.
func AddressOfBytes(data []byte) models.Address {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return models.Address(hex.EncodeToString(hasher.Sum(nil)))
}

// IsAddress reports whether s has the shape of a content address:
// 64 lowercase hex characters.
func IsAddress(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// EncodeLink returns the stored form of a link.
func EncodeLink(link models.Link) ([]byte, error) {
	return Marshal(link)
}

// DecodeLink parses the stored form of a link.
func DecodeLink(data []byte) (models.Link, error) {
	var link models.Link
	if err := Unmarshal(data, &link); err != nil {
		return models.Link{}, fmt.Errorf("decoding link: %w", err)
	}
	return link, nil
}
