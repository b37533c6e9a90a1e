package keys

import (
	"crypto/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/models"
)

func TestSignVerify_Backends(t *testing.T) {
	for _, b := range []Backend{Ed25519, Dilithium3} {
		t.Run(string(b), func(t *testing.T) {
			s, err := Generate("k1", b, rand.Reader)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			ring := NewKeyRing()
			if err := ring.Add("k1", s.PublicKey()); err != nil {
				t.Fatalf("Add: %v", err)
			}

			sig, err := s.Sign([]byte("agreed text"))
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if !ring.Verify([]byte("agreed text"), sig, "k1") {
				t.Error("valid signature did not verify")
			}
			if ring.Verify([]byte("other text"), sig, "k1") {
				t.Error("signature verified over different text")
			}
			if ring.Verify([]byte("agreed text"), sig, "k2") {
				t.Error("signature verified under unknown key id")
			}
			if ring.Verify([]byte("agreed text"), "not-base64!", "k1") {
				t.Error("garbage signature verified")
			}
		})
	}
}

func TestVerify_WrongKey(t *testing.T) {
	a, _ := Generate("a", Ed25519, rand.Reader)
	b, _ := Generate("b", Ed25519, rand.Reader)
	ring := NewKeyRing()
	ring.Add("a", a.PublicKey())
	ring.Add("b", b.PublicKey())

	sig, _ := a.Sign([]byte("t"))
	if ring.Verify([]byte("t"), sig, "b") {
		t.Error("signature by a verified under b")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"no colon", "ed25519AAAA", "invalid key encoding"},
		{"bad backend", "rsa:AAAA", "unsupported backend"},
		{"bad base64", "ed25519:***", "invalid key base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.in)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %q", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestKeyFile_RoundTrip(t *testing.T) {
	for _, b := range []Backend{Ed25519, Dilithium3} {
		t.Run(string(b), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "node.key")
			orig, err := WriteKeyFile(path, "node", b)
			if err != nil {
				t.Fatalf("WriteKeyFile: %v", err)
			}
			loaded, err := LoadSigner(path, "node")
			if err != nil {
				t.Fatalf("LoadSigner: %v", err)
			}
			if loaded.PublicKey() != orig.PublicKey() {
				t.Error("loaded public key differs from generated one")
			}
			if loaded.KeyID() != "node" || loaded.Backend() != b {
				t.Errorf("loaded signer = %s/%s", loaded.KeyID(), loaded.Backend())
			}

			ring := NewKeyRing()
			ring.Add("node", orig.PublicKey())
			sig, _ := loaded.Sign([]byte("x"))
			if !ring.Verify([]byte("x"), sig, "node") {
				t.Error("signature from loaded key did not verify")
			}
		})
	}
}

func TestLoadPeers(t *testing.T) {
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	a, _ := Generate("alice", Ed25519, rand.Reader)
	b, _ := Generate("bob", Ed25519, rand.Reader)
	gormDB.Create(&models.Peer{PeerID: "alice", CryptoBackend: "ed25519", KeyData: a.PublicKey(), Status: models.PeerReady})
	gormDB.Create(&models.Peer{PeerID: "bob", CryptoBackend: "ed25519", KeyData: b.PublicKey(), Status: models.PeerDeleted})

	ring := NewKeyRing()
	n, err := ring.LoadPeers(gormDB)
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d keys, want 1", n)
	}
	if !ring.Has("alice") {
		t.Error("alice should be loaded")
	}
	if ring.Has("bob") {
		t.Error("deleted peer bob should not be loaded")
	}
}
