package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid Ed25519 public key")
	ErrInvalidPrivateKey = errors.New("invalid Ed25519 private key")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureExpired  = errors.New("signature timestamp expired")
	ErrInvalidNonce      = errors.New("invalid or reused nonce")
)

// Identity is a caller keypair. The public key, base64 encoded, is the
// caller's identity in the directory.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateIdentity creates a new random identity.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// IdentityFromSeed rebuilds an identity from a base64 private key, either
// the 32-byte seed or the full 64-byte key.
func IdentityFromSeed(privB64 string) (*Identity, error) {
	decoded, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPrivateKey)
	}

	var priv ed25519.PrivateKey
	switch len(decoded) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(decoded)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(decoded)
	default:
		return nil, fmt.Errorf("%w: must be %d or %d bytes, got %d",
			ErrInvalidPrivateKey, ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
	}
	return &Identity{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

// PublicKeyB64 returns the identity string sent in X-ACP-Identity.
func (id *Identity) PublicKeyB64() string {
	return base64.StdEncoding.EncodeToString(id.PublicKey)
}

// SeedB64 returns the base64 private seed.
func (id *Identity) SeedB64() string {
	return base64.StdEncoding.EncodeToString(id.PrivateKey.Seed())
}

// SignRequest signs a request body for the given nonce and timestamp and
// returns the base64 signature.
func (id *Identity) SignRequest(body []byte, nonce string, timestamp int64) string {
	payload := SignaturePayload(BodyHash(body), nonce, timestamp)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(id.PrivateKey, payload))
}

// ValidatePublicKey checks if a base64-encoded string is a valid Ed25519 public key.
func ValidatePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPublicKey)
	}

	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}

	return ed25519.PublicKey(decoded), nil
}

// VerifySignature verifies a signed message.
func VerifySignature(pubkey ed25519.PublicKey, signedData []byte, signatureB64 string) error {
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 encoding", ErrInvalidSignature)
	}

	if !ed25519.Verify(pubkey, signedData, signature) {
		return ErrInvalidSignature
	}

	return nil
}

// BodyHash returns the hex SHA-256 of a request body.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// SignaturePayload creates the canonical data to sign.
// Format: sha256hex(body)|nonce|timestamp
func SignaturePayload(bodyHash, nonce string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", bodyHash, nonce, timestamp))
}
