package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

func TestParse(t *testing.T) {
	for _, name := range []string{"sha256", "sha3-256"} {
		if _, err := Parse(name); err != nil {
			t.Errorf("Parse(%q): %v", name, err)
		}
	}
	if _, err := Parse("md5"); err == nil {
		t.Error("Parse(md5) should fail")
	}
}

func TestHex(t *testing.T) {
	data := []byte("hello")
	s2 := sha256.Sum256(data)
	s3 := sha3.Sum256(data)

	if got := SHA256.Hex(data); got != hex.EncodeToString(s2[:]) {
		t.Errorf("SHA256.Hex = %s", got)
	}
	if got := SHA3_256.Hex(data); got != hex.EncodeToString(s3[:]) {
		t.Errorf("SHA3_256.Hex = %s", got)
	}
	if SHA256.Hex(data) == SHA3_256.Hex(data) {
		t.Error("sha256 and sha3-256 digests should differ")
	}
}

func TestMultihash(t *testing.T) {
	if SHA256.Multihash() != multihash.SHA2_256 {
		t.Error("SHA256 multihash code mismatch")
	}
	if SHA3_256.Multihash() != multihash.SHA3_256 {
		t.Error("SHA3_256 multihash code mismatch")
	}
}

func TestChain(t *testing.T) {
	first := SHA256.Chain("", "aa")
	if first != SHA256.Hex([]byte("aa")) {
		t.Errorf("genesis chain = %s, want H(aa)", first)
	}
	second := SHA256.Chain(first, "bb")
	if second != SHA256.Hex([]byte(first+"bb")) {
		t.Errorf("chain step = %s, want H(prev||bb)", second)
	}

	// Order matters.
	ab := SHA256.Chain(SHA256.Chain("", "aa"), "bb")
	ba := SHA256.Chain(SHA256.Chain("", "bb"), "aa")
	if ab == ba {
		t.Error("reordered chains should differ")
	}
}
