package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestSignRequest_Verifies(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	body := []byte(`{"name":"Helper Bot"}`)
	sig := id.SignRequest(body, "nonce-0123456789abcdefghij", 1700000000000)

	pub, err := ValidatePublicKey(id.PublicKeyB64())
	if err != nil {
		t.Fatalf("ValidatePublicKey: %v", err)
	}

	payload := SignaturePayload(BodyHash(body), "nonce-0123456789abcdefghij", 1700000000000)
	if err := VerifySignature(pub, payload, sig); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}

	tampered := SignaturePayload(BodyHash([]byte(`{"name":"Other"}`)), "nonce-0123456789abcdefghij", 1700000000000)
	if err := VerifySignature(pub, tampered, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered body: got %v, want ErrInvalidSignature", err)
	}
}

func TestIdentityFromSeed_RoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	restored, err := IdentityFromSeed(id.SeedB64())
	if err != nil {
		t.Fatalf("IdentityFromSeed: %v", err)
	}
	if restored.PublicKeyB64() != id.PublicKeyB64() {
		t.Errorf("public key mismatch after restore")
	}

	full := base64.StdEncoding.EncodeToString(id.PrivateKey)
	restored, err = IdentityFromSeed(full)
	if err != nil {
		t.Fatalf("IdentityFromSeed(full key): %v", err)
	}
	if restored.PublicKeyB64() != id.PublicKeyB64() {
		t.Errorf("public key mismatch after restore from full key")
	}

	if _, err := IdentityFromSeed(base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Errorf("short key: got %v, want ErrInvalidPrivateKey", err)
	}
}

func TestValidatePublicKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"not base64", "!!!", false},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("too short")), false},
		{"32 bytes", base64.StdEncoding.EncodeToString(make([]byte, 32)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePublicKey(tt.input)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidPublicKey) {
				t.Errorf("got %v, want ErrInvalidPublicKey", err)
			}
		})
	}
}

func TestBodyHash(t *testing.T) {
	// SHA-256 of the empty string.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := BodyHash(nil); got != want {
		t.Errorf("BodyHash(nil) = %s, want %s", got, want)
	}
}

func TestIDs(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	if !strings.HasPrefix(a, JobIDPrefix) {
		t.Errorf("job id %q lacks prefix", a)
	}
	if a == b {
		t.Errorf("job ids collide: %s", a)
	}
	if len(a) != len(JobIDPrefix)+36 {
		t.Errorf("job id %q has unexpected length", a)
	}

	e1, e2 := NewEventID(), NewEventID()
	if len(e1) != 26 {
		t.Errorf("event id %q is not a ULID", e1)
	}
	if e1 >= e2 {
		t.Errorf("event ids not increasing: %s then %s", e1, e2)
	}
}

func TestNewNonce(t *testing.T) {
	a, b := NewNonce(), NewNonce()
	if len(a) != 24 {
		t.Errorf("nonce %q has length %d, want 24", a, len(a))
	}
	if a == b {
		t.Errorf("nonces collide: %s", a)
	}
}
