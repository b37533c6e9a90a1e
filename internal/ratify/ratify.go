// Package ratify turns consensus records into status changes. A status
// transition is proposed as a negotiation whose text encodes it; once the
// owners agree, the change is applied and logged in one transaction.
package ratify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/panoramix/internal/consensus"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"github.com/zulandar/panoramix/internal/proof"
	"github.com/zulandar/panoramix/internal/statuslog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Action names what a transition changes.
type Action string

const (
	ActionPeerStatus     Action = "peer_status"
	ActionEndpointStatus Action = "endpoint_status"
)

var (
	// ErrNotTransition means a consensus text does not encode a transition.
	ErrNotTransition = errors.New("ratify: not a status transition")
	// ErrInvalidTransition means the subject cannot move to the requested status.
	ErrInvalidTransition = errors.New("ratify: invalid transition")
)

// Transition is the negotiated text of a status change.
type Transition struct {
	Action    Action `json:"action"`
	SubjectID string `json:"subject_id"`
	Status    string `json:"status"`
}

// Subject maps the action to its status log.
func (t Transition) Subject() (statuslog.Subject, error) {
	switch t.Action {
	case ActionPeerStatus:
		return statuslog.SubjectPeer, nil
	case ActionEndpointStatus:
		return statuslog.SubjectEndpoint, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrNotTransition, t.Action)
}

// Encode returns the negotiation text for t.
func Encode(t Transition) (string, error) {
	if _, err := t.Subject(); err != nil {
		return "", err
	}
	if t.SubjectID == "" {
		return "", fmt.Errorf("ratify: subject id is required")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("ratify: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses a consensus text into a transition.
func Decode(text string) (Transition, error) {
	var t Transition
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return Transition{}, fmt.Errorf("%w: %v", ErrNotTransition, err)
	}
	if _, err := t.Subject(); err != nil {
		return Transition{}, err
	}
	if t.SubjectID == "" {
		return Transition{}, fmt.Errorf("%w: missing subject id", ErrNotTransition)
	}
	return t, nil
}

// ProposeStatus opens a negotiation over t. The required signers are the
// owners of the peer concerned, or the peer itself when it lists none.
func ProposeStatus(gormDB *gorm.DB, l *ledger.Ledger, t Transition) (*models.Negotiation, error) {
	text, err := Encode(t)
	if err != nil {
		return nil, err
	}

	peerID := t.SubjectID
	if t.Action == ActionEndpointStatus {
		ep, err := endpoint.Get(gormDB, t.SubjectID)
		if err != nil {
			return nil, err
		}
		peerID = ep.PeerID
	}
	if _, err := peer.Get(gormDB, peerID); err != nil {
		return nil, err
	}
	signers, err := peer.ListOwners(gormDB, peerID)
	if err != nil {
		return nil, err
	}
	if len(signers) == 0 {
		signers = []string{peerID}
	}
	return l.Open("", text, signers)
}

// Ratifier applies agreed transitions.
type Ratifier struct {
	db     *gorm.DB
	issuer *proof.Issuer
}

// New returns a Ratifier. When issuer is non-nil, endpoint changes are
// followed by a proof refresh.
func New(db *gorm.DB, issuer *proof.Issuer) *Ratifier {
	return &Ratifier{db: db, issuer: issuer}
}

// Subscribe applies every consensus res commits from now on.
func (r *Ratifier) Subscribe(res *consensus.Resolver) {
	res.OnConsensus(func(rec consensus.Record) {
		applied, err := r.Apply(rec)
		switch {
		case errors.Is(err, ErrNotTransition):
		case err != nil:
			log.Printf("ratify: consensus %s: %v", rec.ID, err)
		case applied:
			log.Printf("ratify: applied consensus %s", rec.ID)
		}
	})
}

// Apply sets the status named by rec and appends the status log entry. It
// is idempotent: a consensus already logged for the subject is skipped and
// Apply reports false.
func (r *Ratifier) Apply(rec consensus.Record) (bool, error) {
	t, err := Decode(rec.Text)
	if err != nil {
		return false, err
	}
	subject, _ := t.Subject()

	var applied bool
	err = r.db.Transaction(func(tx *gorm.DB) error {
		done, err := statuslog.HasConsensus(tx, subject, t.SubjectID, rec.ID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		switch t.Action {
		case ActionPeerStatus:
			err = applyPeer(tx, t)
		case ActionEndpointStatus:
			err = applyEndpoint(tx, t)
		}
		if err != nil {
			return err
		}

		if _, err := statuslog.Record(tx, subject, t.SubjectID, rec.ID, t.Status, rec.Timestamp); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied && t.Action == ActionEndpointStatus && r.issuer != nil {
		if _, err := r.issuer.Refresh(t.SubjectID); err != nil {
			log.Printf("ratify: refresh proof %s: %v", t.SubjectID, err)
		}
	}
	return applied, nil
}

func applyPeer(tx *gorm.DB, t Transition) error {
	next := models.PeerStatus(t.Status)
	if !next.Valid() {
		return fmt.Errorf("%w: peer status %q", ErrInvalidTransition, t.Status)
	}
	var p models.Peer
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("peer_id = ?", t.SubjectID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", peer.ErrNotFound, t.SubjectID)
		}
		return fmt.Errorf("ratify: load peer %s: %w", t.SubjectID, err)
	}
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: peer %s %s -> %s", ErrInvalidTransition, t.SubjectID, p.Status, next)
	}
	if err := tx.Model(&models.Peer{}).Where("peer_id = ?", t.SubjectID).Update("status", next).Error; err != nil {
		return fmt.Errorf("ratify: update peer %s: %w", t.SubjectID, err)
	}
	return nil
}

func applyEndpoint(tx *gorm.DB, t Transition) error {
	next := models.EndpointStatus(t.Status)
	if !next.Valid() {
		return fmt.Errorf("%w: endpoint status %q", ErrInvalidTransition, t.Status)
	}
	var ep models.Endpoint
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("endpoint_id = ?", t.SubjectID).First(&ep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", endpoint.ErrNotFound, t.SubjectID)
		}
		return fmt.Errorf("ratify: load endpoint %s: %w", t.SubjectID, err)
	}
	if !ep.Status.CanTransition(next) {
		return fmt.Errorf("%w: endpoint %s %s -> %s", ErrInvalidTransition, t.SubjectID, ep.Status, next)
	}
	if err := tx.Model(&models.Endpoint{}).Where("endpoint_id = ?", t.SubjectID).Update("status", next).Error; err != nil {
		return fmt.Errorf("ratify: update endpoint %s: %w", t.SubjectID, err)
	}
	return nil
}
