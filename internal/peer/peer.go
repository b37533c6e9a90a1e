// Package peer provides peer registration and owner management.
package peer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound means the peer does not exist.
	ErrNotFound = errors.New("peer: not found")
	// ErrDuplicateKey means another peer already holds the key data.
	ErrDuplicateKey = errors.New("peer: key already registered")
)

// RegisterOpts holds parameters for registering a peer.
type RegisterOpts struct {
	PeerID       string // derived from the key when empty
	Name         string
	KeyType      int
	KeyData      string // "<backend>:<base64 public key>"
	CryptoParams string
	Owners       []string
}

// Fingerprint derives a stable peer id from encoded key data.
func Fingerprint(keyData string) (string, error) {
	_, raw, err := keys.Decode(keyData)
	if err != nil {
		return "", fmt.Errorf("peer: %w", err)
	}
	return digest.SHA256.Hex(raw)[:32], nil
}

// Register creates a pending peer and its owners. Key data must be unique.
func Register(gormDB *gorm.DB, opts RegisterOpts) (*models.Peer, error) {
	backend, _, err := keys.Decode(opts.KeyData)
	if err != nil {
		return nil, fmt.Errorf("peer: key data: %w", err)
	}
	if opts.PeerID == "" {
		if opts.PeerID, err = Fingerprint(opts.KeyData); err != nil {
			return nil, err
		}
	}

	p := models.Peer{
		PeerID:        opts.PeerID,
		Name:          opts.Name,
		KeyType:       opts.KeyType,
		CryptoBackend: string(backend),
		CryptoParams:  opts.CryptoParams,
		KeyData:       opts.KeyData,
		Status:        models.PeerPending,
	}

	err = gormDB.Transaction(func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&models.Peer{}).Where("key_data = ?", opts.KeyData).Count(&clash).Error; err != nil {
			return fmt.Errorf("peer: check key: %w", err)
		}
		if clash > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, opts.PeerID)
		}
		if err := tx.Create(&p).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return fmt.Errorf("peer: %s already exists: %w", opts.PeerID, err)
			}
			return fmt.Errorf("peer: register %s: %w", opts.PeerID, err)
		}
		for _, o := range opts.Owners {
			if err := addOwner(tx, opts.PeerID, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, registerError(gormDB, opts, err)
	}
	return &p, nil
}

// registerError reports a unique-index failure as ErrDuplicateKey when a
// concurrent registration committed the same key after the pre-check. The
// lookup runs outside the failed transaction so it sees that commit.
func registerError(gormDB *gorm.DB, opts RegisterOpts, err error) error {
	if !db.IsDuplicateKey(err) || errors.Is(err, ErrDuplicateKey) {
		return err
	}
	var held int64
	if qerr := gormDB.Model(&models.Peer{}).Where("key_data = ?", opts.KeyData).Count(&held).Error; qerr == nil && held > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, opts.PeerID)
	}
	return err
}

// Get retrieves a peer by id.
func Get(gormDB *gorm.DB, peerID string) (*models.Peer, error) {
	var p models.Peer
	if err := gormDB.Where("peer_id = ?", peerID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, peerID)
		}
		return nil, fmt.Errorf("peer: get %s: %w", peerID, err)
	}
	return &p, nil
}

// List returns peers, optionally filtered by status, ordered by id.
func List(gormDB *gorm.DB, status models.PeerStatus) ([]models.Peer, error) {
	q := gormDB.Order("peer_id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var peers []models.Peer
	if err := q.Find(&peers).Error; err != nil {
		return nil, fmt.Errorf("peer: list: %w", err)
	}
	return peers, nil
}

// AddOwner authorizes ownerKeyID for peerID. Adding an existing owner is a no-op.
func AddOwner(gormDB *gorm.DB, peerID, ownerKeyID string) error {
	if _, err := Get(gormDB, peerID); err != nil {
		return err
	}
	return addOwner(gormDB, peerID, ownerKeyID)
}

func addOwner(tx *gorm.DB, peerID, ownerKeyID string) error {
	if ownerKeyID == "" {
		return fmt.Errorf("peer: owner key id is required")
	}
	o := models.Owner{PeerID: peerID, OwnerKeyID: ownerKeyID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&o).Error; err != nil {
		return fmt.Errorf("peer: add owner %s to %s: %w", ownerKeyID, peerID, err)
	}
	return nil
}

// ListOwners returns the owner key ids of a peer, sorted.
func ListOwners(gormDB *gorm.DB, peerID string) ([]string, error) {
	var owners []string
	if err := gormDB.Model(&models.Owner{}).Where("peer_id = ?", peerID).
		Pluck("owner_key_id", &owners).Error; err != nil {
		return nil, fmt.Errorf("peer: owners of %s: %w", peerID, err)
	}
	sort.Strings(owners)
	return owners, nil
}
