package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// Backend names a signature scheme.
type Backend string

const (
	Ed25519    Backend = "ed25519"
	Dilithium3 Backend = "dilithium3"
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case Ed25519, Dilithium3:
		return Backend(name), nil
	}
	return "", fmt.Errorf("keys: unsupported backend: %q", name)
}

// Signer produces signatures for a single key.
type Signer interface {
	KeyID() string
	Backend() Backend
	PublicKey() string
	Sign(text []byte) (string, error)
}

// Verifier checks a signature over text against a registered key id.
type Verifier interface {
	Verify(text []byte, signature, keyID string) bool
}

func digestFor(b Backend, text []byte) []byte {
	if b == Dilithium3 {
		s := sha3.Sum256(text)
		return s[:]
	}
	s := sha256.Sum256(text)
	return s[:]
}

// Encode formats raw key bytes as "<backend>:<base64>".
func Encode(b Backend, raw []byte) string {
	return string(b) + ":" + base64.StdEncoding.EncodeToString(raw)
}

// Decode splits an encoded key into backend and raw bytes.
func Decode(encoded string) (Backend, []byte, error) {
	name, enc, ok := strings.Cut(strings.TrimSpace(encoded), ":")
	if !ok {
		return "", nil, fmt.Errorf("keys: invalid key encoding")
	}
	b, err := ParseBackend(name)
	if err != nil {
		return "", nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("keys: invalid key base64: %w", err)
	}
	return b, raw, nil
}

// verifyRaw checks sig against a raw public key of the given backend.
func verifyRaw(b Backend, pub, text []byte, sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	digest := digestFor(b, text)
	switch b {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize || len(raw) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), digest, raw)
	case Dilithium3:
		if len(raw) != mode3.SignatureSize {
			return false
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		return mode3.Verify(&pk, digest, raw)
	}
	return false
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	id   string
	priv ed25519.PrivateKey
}

// NewEd25519Signer wraps priv under keyID.
func NewEd25519Signer(keyID string, priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{id: keyID, priv: priv}
}

func (s *Ed25519Signer) KeyID() string    { return s.id }
func (s *Ed25519Signer) Backend() Backend { return Ed25519 }

// PublicKey returns the encoded public key.
func (s *Ed25519Signer) PublicKey() string {
	return Encode(Ed25519, s.priv.Public().(ed25519.PublicKey))
}

// Sign returns a base64 signature over sha256(text).
func (s *Ed25519Signer) Sign(text []byte) (string, error) {
	sig := ed25519.Sign(s.priv, digestFor(Ed25519, text))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Dilithium3Signer signs with a Dilithium3 private key.
type Dilithium3Signer struct {
	id   string
	priv *mode3.PrivateKey
	pub  *mode3.PublicKey
}

// NewDilithium3Signer wraps priv under keyID.
func NewDilithium3Signer(keyID string, priv *mode3.PrivateKey) *Dilithium3Signer {
	return &Dilithium3Signer{id: keyID, priv: priv, pub: priv.Public().(*mode3.PublicKey)}
}

func (s *Dilithium3Signer) KeyID() string    { return s.id }
func (s *Dilithium3Signer) Backend() Backend { return Dilithium3 }

// PublicKey returns the encoded public key.
func (s *Dilithium3Signer) PublicKey() string {
	raw, _ := s.pub.MarshalBinary()
	return Encode(Dilithium3, raw)
}

// Sign returns a base64 signature over sha3-256(text).
func (s *Dilithium3Signer) Sign(text []byte) (string, error) {
	if s.priv == nil {
		return "", fmt.Errorf("keys: missing private key")
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digestFor(Dilithium3, text), sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Generate creates a fresh signer for backend using rand.
func Generate(keyID string, b Backend, rand io.Reader) (Signer, error) {
	switch b {
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand)
		if err != nil {
			return nil, fmt.Errorf("keys: generate ed25519: %w", err)
		}
		return NewEd25519Signer(keyID, priv), nil
	case Dilithium3:
		_, priv, err := mode3.GenerateKey(rand)
		if err != nil {
			return nil, fmt.Errorf("keys: generate dilithium3: %w", err)
		}
		return NewDilithium3Signer(keyID, priv), nil
	}
	return nil, fmt.Errorf("keys: unsupported backend: %q", b)
}
