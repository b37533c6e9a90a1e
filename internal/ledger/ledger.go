// Package ledger records signed contributions to negotiations and keeps
// exactly one latest contribution per (negotiation, signer).
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/lockset"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidSignature means the signature does not verify for the text and key.
	ErrInvalidSignature = errors.New("ledger: invalid signature")
	// ErrNegotiationClosed means the negotiation no longer takes contributions.
	ErrNegotiationClosed = errors.New("ledger: negotiation closed")
	// ErrUnknownSigner means the signer is not among the declared signers.
	ErrUnknownSigner = errors.New("ledger: signer not expected")
	// ErrNotFound means the negotiation does not exist.
	ErrNotFound = errors.New("ledger: negotiation not found")
)

// Ledger serializes contribution writes per (negotiation, signer).
type Ledger struct {
	db       *gorm.DB
	verifier keys.Verifier
	locks    *lockset.Set
}

// New returns a Ledger over db that checks signatures with verifier.
func New(db *gorm.DB, verifier keys.Verifier) *Ledger {
	return &Ledger{db: db, verifier: verifier, locks: lockset.New()}
}

// Open creates a negotiation over text with the given required signers.
// An empty id is replaced with a random UUID.
func (l *Ledger) Open(id, text string, signers []string) (*models.Negotiation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	n := models.Negotiation{
		ID:     id,
		Text:   text,
		Status: models.NegotiationOpen,
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&n).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return fmt.Errorf("ledger: negotiation %s already exists", id)
			}
			return fmt.Errorf("ledger: open %s: %w", id, err)
		}
		for _, s := range signers {
			if err := requireSigner(tx, id, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Require declares signerKeyID as an expected signer of an open negotiation.
// Declaring the same signer twice is a no-op.
func (l *Ledger) Require(negotiationID, signerKeyID string) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		n, err := lockNegotiation(tx, negotiationID)
		if err != nil {
			return err
		}
		if n.Status != models.NegotiationOpen {
			return fmt.Errorf("%w: %s is %s", ErrNegotiationClosed, negotiationID, n.Status)
		}
		return requireSigner(tx, negotiationID, signerKeyID)
	})
}

func requireSigner(tx *gorm.DB, negotiationID, signerKeyID string) error {
	if signerKeyID == "" {
		return fmt.Errorf("ledger: signer key id is required")
	}
	s := models.Signing{NegotiationID: negotiationID, SignerKeyID: signerKeyID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
		return fmt.Errorf("ledger: require %s on %s: %w", signerKeyID, negotiationID, err)
	}
	return nil
}

// Submit records a signed contribution and makes it the signer's latest.
// It does not evaluate consensus.
func (l *Ledger) Submit(negotiationID, signerKeyID, text, signature string) (uint, error) {
	if negotiationID == "" {
		return 0, fmt.Errorf("ledger: negotiation id is required")
	}
	if signerKeyID == "" {
		return 0, fmt.Errorf("ledger: signer key id is required")
	}
	if !l.verifier.Verify([]byte(text), signature, signerKeyID) {
		return 0, fmt.Errorf("%w: signer %s on %s", ErrInvalidSignature, signerKeyID, negotiationID)
	}

	unlock := l.locks.Lock(lockset.Key(negotiationID, signerKeyID))
	defer unlock()

	var c models.Contribution
	err := l.db.Transaction(func(tx *gorm.DB) error {
		n, err := lockNegotiation(tx, negotiationID)
		if err != nil {
			return err
		}
		if n.Status != models.NegotiationOpen {
			return fmt.Errorf("%w: %s is %s", ErrNegotiationClosed, negotiationID, n.Status)
		}

		signers, err := requiredSigners(tx, negotiationID)
		if err != nil {
			return err
		}
		if len(signers) > 0 && !contains(signers, signerKeyID) {
			return fmt.Errorf("%w: %s on %s", ErrUnknownSigner, signerKeyID, negotiationID)
		}

		if err := tx.Model(&models.Contribution{}).
			Where("negotiation_id = ? AND signer_key_id = ? AND latest = ?", negotiationID, signerKeyID, true).
			Update("latest", false).Error; err != nil {
			return fmt.Errorf("ledger: supersede %s on %s: %w", signerKeyID, negotiationID, err)
		}

		c = models.Contribution{
			NegotiationID: negotiationID,
			Text:          text,
			Latest:        true,
			SignerKeyID:   signerKeyID,
			Signature:     signature,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("ledger: insert contribution: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// Abort closes an open negotiation without consensus.
func (l *Ledger) Abort(negotiationID string) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		n, err := lockNegotiation(tx, negotiationID)
		if err != nil {
			return err
		}
		switch n.Status {
		case models.NegotiationOpen:
		case models.NegotiationAborted:
			return nil
		case models.NegotiationConsensus:
			return fmt.Errorf("%w: %s already reached consensus", ErrNegotiationClosed, negotiationID)
		default:
			return fmt.Errorf("ledger: %s has unknown status %q", negotiationID, n.Status)
		}
		now := time.Now()
		if err := tx.Model(&models.Negotiation{}).Where("id = ?", negotiationID).Updates(map[string]interface{}{
			"status":    models.NegotiationAborted,
			"timestamp": now,
		}).Error; err != nil {
			return fmt.Errorf("ledger: abort %s: %w", negotiationID, err)
		}
		return nil
	})
}

// lockNegotiation loads a negotiation row with an update lock.
func lockNegotiation(tx *gorm.DB, id string) (*models.Negotiation, error) {
	var n models.Negotiation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ledger: load %s: %w", id, err)
	}
	return &n, nil
}

// Get retrieves a negotiation by id.
func Get(db *gorm.DB, id string) (*models.Negotiation, error) {
	var n models.Negotiation
	if err := db.Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ledger: get %s: %w", id, err)
	}
	return &n, nil
}

// LatestContributions returns the latest contribution of every signer,
// ordered by signer key id.
func LatestContributions(db *gorm.DB, negotiationID string) ([]models.Contribution, error) {
	var cs []models.Contribution
	if err := db.Where("negotiation_id = ? AND latest = ?", negotiationID, true).
		Order("signer_key_id ASC").Find(&cs).Error; err != nil {
		return nil, fmt.Errorf("ledger: latest contributions %s: %w", negotiationID, err)
	}
	return cs, nil
}

// History returns every contribution of a signer in submission order.
// An empty signer returns the history of all signers.
func History(db *gorm.DB, negotiationID, signerKeyID string) ([]models.Contribution, error) {
	q := db.Where("negotiation_id = ?", negotiationID)
	if signerKeyID != "" {
		q = q.Where("signer_key_id = ?", signerKeyID)
	}
	var cs []models.Contribution
	if err := q.Order("id ASC").Find(&cs).Error; err != nil {
		return nil, fmt.Errorf("ledger: history %s: %w", negotiationID, err)
	}
	return cs, nil
}

// RequiredSigners returns the declared signers of a negotiation, sorted.
func RequiredSigners(db *gorm.DB, negotiationID string) ([]string, error) {
	return requiredSigners(db, negotiationID)
}

func requiredSigners(db *gorm.DB, negotiationID string) ([]string, error) {
	var signers []string
	if err := db.Model(&models.Signing{}).Where("negotiation_id = ?", negotiationID).
		Pluck("signer_key_id", &signers).Error; err != nil {
		return nil, fmt.Errorf("ledger: signers of %s: %w", negotiationID, err)
	}
	sort.Strings(signers)
	return signers, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
