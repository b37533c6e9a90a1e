package keys

import (
	"fmt"
	"sync"

	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

type ringEntry struct {
	backend Backend
	pub     []byte
}

// KeyRing maps key ids to public keys and implements Verifier.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]ringEntry
}

// NewKeyRing returns an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]ringEntry)}
}

// Add registers an encoded public key under keyID, replacing any previous one.
func (r *KeyRing) Add(keyID, encoded string) error {
	if keyID == "" {
		return fmt.Errorf("keys: keyID is required")
	}
	b, raw, err := Decode(encoded)
	if err != nil {
		return fmt.Errorf("keys: add %s: %w", keyID, err)
	}
	r.mu.Lock()
	r.keys[keyID] = ringEntry{backend: b, pub: raw}
	r.mu.Unlock()
	return nil
}

// Has reports whether keyID is registered.
func (r *KeyRing) Has(keyID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[keyID]
	return ok
}

// Verify reports whether signature is valid for text under keyID.
// Unknown key ids never verify.
func (r *KeyRing) Verify(text []byte, signature, keyID string) bool {
	r.mu.RLock()
	e, ok := r.keys[keyID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return verifyRaw(e.backend, e.pub, text, signature)
}

// LoadPeers registers the key of every non-deleted peer, keyed by peer id.
// It returns the number of keys loaded.
func (r *KeyRing) LoadPeers(db *gorm.DB) (int, error) {
	var peers []models.Peer
	if err := db.Where("status <> ?", models.PeerDeleted).Find(&peers).Error; err != nil {
		return 0, fmt.Errorf("keys: load peers: %w", err)
	}
	n := 0
	for _, p := range peers {
		if err := r.Add(p.PeerID, p.KeyData); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
