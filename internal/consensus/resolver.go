// Package consensus decides when a negotiation has reached unanimous
// agreement and materializes its consensus record exactly once.
package consensus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/lockset"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConsensusAlreadyExists means a derived consensus id already belongs to
// another negotiation. It is an integrity fault, never a normal outcome.
var ErrConsensusAlreadyExists = errors.New("consensus: consensus id already exists")

// Alerter receives integrity faults that operators must see.
type Alerter interface {
	IntegrityFault(subject, detail string) error
}

// Resolver evaluates negotiations. It is safe for concurrent use and
// idempotent: racing callers all observe the single persisted record.
type Resolver struct {
	db      *gorm.DB
	alg     digest.Algorithm
	locks   *lockset.Set
	mu      sync.RWMutex
	subs    []func(Record)
	alerter Alerter
}

// New returns a Resolver over db deriving ids with alg.
func New(db *gorm.DB, alg digest.Algorithm) *Resolver {
	return &Resolver{db: db, alg: alg, locks: lockset.New()}
}

// SetAlerter installs the sink for integrity faults.
func (r *Resolver) SetAlerter(a Alerter) {
	r.mu.Lock()
	r.alerter = a
	r.mu.Unlock()
}

// OnConsensus registers fn to run after a new consensus is committed.
// fn is not called for records that were already persisted.
func (r *Resolver) OnConsensus(fn func(Record)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// TryResolve checks whether the negotiation has reached consensus and, if
// so, persists and returns the record. Missing signers and diverging texts
// are reported through Result, not as errors.
func (r *Resolver) TryResolve(negotiationID string) (Result, error) {
	unlock := r.locks.Lock(negotiationID)
	defer unlock()

	var (
		res     Result
		created bool
	)
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var n models.Negotiation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", negotiationID).First(&n).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ledger.ErrNotFound, negotiationID)
			}
			return fmt.Errorf("consensus: load %s: %w", negotiationID, err)
		}

		if n.Consensus != nil {
			rec, err := storedRecord(tx, &n)
			if err != nil {
				return err
			}
			res = Result{State: StateAgreed, Record: rec}
			return nil
		}
		if n.Status == models.NegotiationAborted {
			res = Result{State: StateAborted}
			return nil
		}

		required, err := ledger.RequiredSigners(tx, negotiationID)
		if err != nil {
			return err
		}
		latest, err := ledger.LatestContributions(tx, negotiationID)
		if err != nil {
			return err
		}

		var (
			text     string
			signings map[string]string
		)
		res, text, signings, err = Evaluate(r.alg, required, latest)
		if err != nil {
			return err
		}
		if res.State != StateAgreed {
			return nil
		}

		id, err := ComputeID(r.alg, negotiationID, text, signings)
		if err != nil {
			return err
		}

		var clash int64
		if err := tx.Model(&models.Negotiation{}).
			Where("consensus = ? AND id <> ?", id, negotiationID).Count(&clash).Error; err != nil {
			return fmt.Errorf("consensus: check %s: %w", id, err)
		}
		if clash > 0 {
			return fmt.Errorf("%w: %s (negotiation %s)", ErrConsensusAlreadyExists, id, negotiationID)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		if err := tx.Model(&models.Negotiation{}).Where("id = ? AND consensus IS NULL", negotiationID).
			Updates(map[string]interface{}{
				"consensus": id,
				"status":    models.NegotiationConsensus,
				"text":      text,
				"timestamp": now,
			}).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return fmt.Errorf("%w: %s (negotiation %s)", ErrConsensusAlreadyExists, id, negotiationID)
			}
			return fmt.Errorf("consensus: persist %s: %w", negotiationID, err)
		}

		for signer, sig := range signings {
			if err := tx.Model(&models.Signing{}).
				Where("negotiation_id = ? AND signer_key_id = ?", negotiationID, signer).
				Update("signature", sig).Error; err != nil {
				return fmt.Errorf("consensus: record signing %s: %w", signer, err)
			}
		}

		res.Record = &Record{
			ID:            id,
			NegotiationID: negotiationID,
			Text:          text,
			Signings:      signings,
			Timestamp:     now,
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConsensusAlreadyExists) || errors.Is(err, ErrCorruptLedger) {
			r.fault(negotiationID, err)
		}
		return Result{}, err
	}

	if created {
		r.notify(*res.Record)
	}
	return res, nil
}

func (r *Resolver) fault(negotiationID string, err error) {
	log.Printf("consensus: INTEGRITY FAULT on negotiation %s: %v", negotiationID, err)
	r.mu.RLock()
	a := r.alerter
	r.mu.RUnlock()
	if a == nil {
		return
	}
	if alertErr := a.IntegrityFault("negotiation "+negotiationID, err.Error()); alertErr != nil {
		log.Printf("consensus: alert for %s failed: %v", negotiationID, alertErr)
	}
}

func (r *Resolver) notify(rec Record) {
	r.mu.RLock()
	subs := append([]func(Record){}, r.subs...)
	r.mu.RUnlock()
	for _, fn := range subs {
		fn(rec)
	}
}

// Stored returns the persisted consensus record of a negotiation, or
// ErrNoConsensus if it has none yet.
func Stored(db *gorm.DB, negotiationID string) (*Record, error) {
	n, err := ledger.Get(db, negotiationID)
	if err != nil {
		return nil, err
	}
	return storedRecord(db, n)
}

// ErrNoConsensus means the negotiation has not reached consensus.
var ErrNoConsensus = errors.New("consensus: no consensus yet")

func storedRecord(db *gorm.DB, n *models.Negotiation) (*Record, error) {
	if n.Consensus == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConsensus, n.ID)
	}
	latest, err := ledger.LatestContributions(db, n.ID)
	if err != nil {
		return nil, err
	}
	signings := make(map[string]string, len(latest))
	for _, c := range latest {
		signings[c.SignerKeyID] = c.Signature
	}
	rec := &Record{
		ID:            *n.Consensus,
		NegotiationID: n.ID,
		Text:          n.Text,
		Signings:      signings,
	}
	if n.Timestamp != nil {
		rec.Timestamp = n.Timestamp.UTC()
	}
	return rec, nil
}

// FindByID returns the record with the given consensus id.
func FindByID(db *gorm.DB, consensusID string) (*Record, error) {
	var n models.Negotiation
	if err := db.Where("consensus = ?", consensusID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoConsensus, consensusID)
		}
		return nil, fmt.Errorf("consensus: find %s: %w", consensusID, err)
	}
	return storedRecord(db, &n)
}
