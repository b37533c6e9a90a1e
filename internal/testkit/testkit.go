// Package testkit holds shared fixtures for package tests: a migrated
// in-memory store and a key ring with ready-made signers.
package testkit

import (
	"crypto/rand"
	"testing"

	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

// DB returns a fresh migrated in-memory database.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return gormDB
}

// Keys generates an ed25519 signer per id and a ring that knows them all.
func Keys(t testing.TB, ids ...string) (*keys.KeyRing, map[string]keys.Signer) {
	t.Helper()
	ring := keys.NewKeyRing()
	signers := make(map[string]keys.Signer, len(ids))
	for _, id := range ids {
		s, err := keys.Generate(id, keys.Ed25519, rand.Reader)
		if err != nil {
			t.Fatalf("generate key %s: %v", id, err)
		}
		if err := ring.Add(id, s.PublicKey()); err != nil {
			t.Fatalf("add key %s: %v", id, err)
		}
		signers[id] = s
	}
	return ring, signers
}

// Sign signs text with s, failing the test on error.
func Sign(t testing.TB, s keys.Signer, text string) string {
	t.Helper()
	sig, err := s.Sign([]byte(text))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

// Peer inserts a ready peer whose key is s.
func Peer(t testing.TB, gormDB *gorm.DB, s keys.Signer) *models.Peer {
	t.Helper()
	p := models.Peer{
		PeerID:        s.KeyID(),
		Name:          s.KeyID(),
		CryptoBackend: string(s.Backend()),
		KeyData:       s.PublicKey(),
		Status:        models.PeerReady,
	}
	if err := gormDB.Create(&p).Error; err != nil {
		t.Fatalf("create peer %s: %v", p.PeerID, err)
	}
	return &p
}

// Endpoint inserts an endpoint with the given status and size bounds.
func Endpoint(t testing.TB, gormDB *gorm.DB, id, peerID string, status models.EndpointStatus, sizeMin, sizeMax int) *models.Endpoint {
	t.Helper()
	e := models.Endpoint{
		EndpointID:   id,
		PeerID:       peerID,
		EndpointType: "mailbox",
		SizeMin:      sizeMin,
		SizeMax:      sizeMax,
		Status:       status,
	}
	if err := gormDB.Create(&e).Error; err != nil {
		t.Fatalf("create endpoint %s: %v", id, err)
	}
	return &e
}
