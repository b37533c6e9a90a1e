// Package digest names the hash algorithms used for message hashes,
// box hash chains and consensus identifiers.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// Algorithm identifies a supported hash function.
type Algorithm string

const (
	SHA256   Algorithm = "sha256"
	SHA3_256 Algorithm = "sha3-256"
)

// Parse validates an algorithm name.
func Parse(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256, SHA3_256:
		return Algorithm(name), nil
	}
	return "", fmt.Errorf("digest: unsupported hash algorithm: %q", name)
}

// Sum hashes data. Unknown algorithms fall back to sha256.
func (a Algorithm) Sum(data []byte) []byte {
	switch a {
	case SHA3_256:
		s := sha3.Sum256(data)
		return s[:]
	default:
		s := sha256.Sum256(data)
		return s[:]
	}
}

// Hex hashes data and returns the lowercase hex digest.
func (a Algorithm) Hex(data []byte) string {
	return hex.EncodeToString(a.Sum(data))
}

// Multihash returns the multihash code for the algorithm.
func (a Algorithm) Multihash() uint64 {
	if a == SHA3_256 {
		return multihash.SHA3_256
	}
	return multihash.SHA2_256
}

// Chain extends a rolling hash: H(prev || next). Both inputs are the hex
// strings as stored; the genesis value is the empty string.
func (a Algorithm) Chain(prev, next string) string {
	buf := make([]byte, 0, len(prev)+len(next))
	buf = append(buf, prev...)
	buf = append(buf, next...)
	return a.Hex(buf)
}
