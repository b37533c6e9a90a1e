// Package proof issues and checks process proofs: signed snapshots of an
// endpoint's box chains that auditors can check without trusting the store.
package proof

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNoProof means the endpoint has not been attested yet.
	ErrNoProof = errors.New("proof: no process proof")
	// ErrInvalidProof means the proof's signature or chain claim does not hold.
	ErrInvalidProof = errors.New("proof: invalid process proof")
)

// Proof is a signed snapshot of both box chains of an endpoint.
type Proof struct {
	EndpointID  string                `json:"endpoint_id"`
	Status      models.EndpointStatus `json:"status"`
	InboxHash   string                `json:"inbox_hash"`
	InboxCount  int64                 `json:"inbox_count"`
	OutboxHash  string                `json:"outbox_hash"`
	OutboxCount int64                 `json:"outbox_count"`
	IssuedAt    time.Time             `json:"issued_at"`
	SignerKeyID string                `json:"signer_key_id"`
	Signature   string                `json:"signature,omitempty"`
}

// SigningBytes returns the canonical bytes covered by the signature.
func (p *Proof) SigningBytes() ([]byte, error) {
	unsigned := *p
	unsigned.Signature = ""
	b, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal: %w", err)
	}
	return b, nil
}

func (p *Proof) box(box models.Box) (string, int64) {
	if box == models.BoxOutbox {
		return p.OutboxHash, p.OutboxCount
	}
	return p.InboxHash, p.InboxCount
}

// Issuer signs proofs with the local peer's key.
type Issuer struct {
	db     *gorm.DB
	chain  *boxchain.Chain
	signer keys.Signer
}

// NewIssuer returns an Issuer attesting chains of c with signer.
func NewIssuer(db *gorm.DB, c *boxchain.Chain, signer keys.Signer) *Issuer {
	return &Issuer{db: db, chain: c, signer: signer}
}

// Refresh replays both boxes of endpointID and, if they are intact, stores
// a freshly signed proof on the endpoint. A broken chain is never attested.
func (i *Issuer) Refresh(endpointID string) (*Proof, error) {
	ep, err := endpoint.Get(i.db, endpointID)
	if err != nil {
		return nil, err
	}

	p := &Proof{
		EndpointID:  endpointID,
		Status:      ep.Status,
		IssuedAt:    time.Now().UTC().Truncate(time.Millisecond),
		SignerKeyID: i.signer.KeyID(),
	}
	for _, box := range models.Boxes() {
		rep, err := i.chain.Verify(endpointID, box)
		if err != nil {
			return nil, fmt.Errorf("proof: refuse to attest %s: %w", endpointID, err)
		}
		if box == models.BoxOutbox {
			p.OutboxHash, p.OutboxCount = rep.Stored, rep.Count
		} else {
			p.InboxHash, p.InboxCount = rep.Stored, rep.Count
		}
	}

	msg, err := p.SigningBytes()
	if err != nil {
		return nil, err
	}
	if p.Signature, err = i.signer.Sign(msg); err != nil {
		return nil, fmt.Errorf("proof: sign %s: %w", endpointID, err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("proof: marshal: %w", err)
	}
	if err := i.db.Model(&models.Endpoint{}).Where("endpoint_id = ?", endpointID).
		Update("process_proof", string(raw)).Error; err != nil {
		return nil, fmt.Errorf("proof: store %s: %w", endpointID, err)
	}
	return p, nil
}

// Load decodes the stored proof of endpointID.
func Load(gormDB *gorm.DB, endpointID string) (*Proof, error) {
	ep, err := endpoint.Get(gormDB, endpointID)
	if err != nil {
		return nil, err
	}
	return Parse(ep)
}

// Parse decodes the proof stored on ep.
func Parse(ep *models.Endpoint) (*Proof, error) {
	if ep.ProcessProof == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoProof, ep.EndpointID)
	}
	var p Proof
	if err := json.Unmarshal([]byte(ep.ProcessProof), &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProof, ep.EndpointID, err)
	}
	return &p, nil
}

// Check is the result of verifying a stored proof.
type Check struct {
	Proof *Proof `json:"proof"`
	// Current is false when messages were accepted after the proof was issued.
	Current bool `json:"current"`
}

// Verify checks the stored proof of endpointID: the signature must verify
// under the signer's key and each attested hash must equal the replay of the
// first count messages of its box. A proof that is older than the box is
// still valid but not current.
func Verify(gormDB *gorm.DB, c *boxchain.Chain, verifier keys.Verifier, endpointID string) (*Check, error) {
	ep, err := endpoint.Get(gormDB, endpointID)
	if err != nil {
		return nil, err
	}
	p, err := Parse(ep)
	if err != nil {
		return nil, err
	}
	if p.EndpointID != endpointID {
		return nil, fmt.Errorf("%w: issued for %s", ErrInvalidProof, p.EndpointID)
	}
	msg, err := p.SigningBytes()
	if err != nil {
		return nil, err
	}
	if !verifier.Verify(msg, p.Signature, p.SignerKeyID) {
		return nil, fmt.Errorf("%w: bad signature by %s", ErrInvalidProof, p.SignerKeyID)
	}

	check := &Check{Proof: p, Current: true}
	for _, box := range models.Boxes() {
		hash, count := p.box(box)
		msgs, err := boxchain.Messages(gormDB, endpointID, box)
		if err != nil {
			return nil, err
		}
		if int64(len(msgs)) < count {
			return nil, fmt.Errorf("%w: %s attests %d messages, box holds %d", ErrInvalidProof, box, count, len(msgs))
		}
		if got := boxchain.Replay(c.Algorithm(), msgs[:count]); got != hash {
			return nil, fmt.Errorf("%w: %s replays to %s, proof says %s", ErrInvalidProof, box, got, hash)
		}
		if int64(len(msgs)) != count || ep.BoxHash(box) != hash {
			check.Current = false
		}
	}
	return check, nil
}
