package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// WriteKeyFile generates a key for backend and writes its private part to
// path (mode 0600). The returned signer carries keyID.
func WriteKeyFile(path, keyID string, b Backend) (Signer, error) {
	s, err := Generate(keyID, b, rand.Reader)
	if err != nil {
		return nil, err
	}
	var raw []byte
	switch v := s.(type) {
	case *Ed25519Signer:
		raw = v.priv.Seed()
	case *Dilithium3Signer:
		raw, err = v.priv.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keys: marshal dilithium3 key: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Encode(b, raw)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("keys: write %s: %w", path, err)
	}
	return s, nil
}

// LoadSigner reads a private key file written by WriteKeyFile.
func LoadSigner(path, keyID string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	b, raw, err := Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("keys: %s: %w", path, err)
	}
	switch b {
	case Ed25519:
		if len(raw) != ed25519.SeedSize {
			return nil, fmt.Errorf("keys: %s: ed25519 seed must be %d bytes, got %d", path, ed25519.SeedSize, len(raw))
		}
		return NewEd25519Signer(keyID, ed25519.NewKeyFromSeed(raw)), nil
	case Dilithium3:
		var priv mode3.PrivateKey
		if err := priv.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("keys: %s: invalid dilithium3 key: %w", path, err)
		}
		return NewDilithium3Signer(keyID, &priv), nil
	}
	return nil, fmt.Errorf("keys: %s: unsupported backend %q", path, b)
}
