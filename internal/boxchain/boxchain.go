// Package boxchain accepts messages into endpoint boxes and keeps each box's
// rolling hash chain: hash_n = H(hash_{n-1} || message_hash_n), genesis "".
// Reordering, removing or editing a stored message breaks the chain.
package boxchain

import (
	"errors"
	"fmt"

	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/sequencer"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateMessage means the box already holds a message with this hash.
	ErrDuplicateMessage = errors.New("boxchain: duplicate message")
	// ErrEndpointNotReady means the endpoint's status refuses traffic on the box.
	ErrEndpointNotReady = errors.New("boxchain: endpoint not ready")
	// ErrSizeViolation means the box is at its size_max.
	ErrSizeViolation = errors.New("boxchain: size violation")
	// ErrHashMismatch means the supplied message hash is not the hash of the text.
	ErrHashMismatch = errors.New("boxchain: message hash mismatch")
	// ErrOutOfOrder means the caller expected a different serial.
	ErrOutOfOrder = errors.New("boxchain: out of order")
	// ErrChainBroken means replaying stored messages does not give the stored hash.
	ErrChainBroken = errors.New("boxchain: hash chain broken")
	// ErrEndpointNotFound means the endpoint does not exist.
	ErrEndpointNotFound = sequencer.ErrEndpointNotFound
)

// Incoming is a message offered to a box.
type Incoming struct {
	Sender      string
	Recipient   string
	Text        string
	MessageHash string // hex digest of Text; computed when empty

	// ExpectedSerial, when non-zero, must equal the serial the box assigns.
	ExpectedSerial int64
}

// Chain accepts messages and verifies box chains.
type Chain struct {
	db  *gorm.DB
	alg digest.Algorithm
	seq *sequencer.Sequencer
}

// New returns a Chain over db hashing with alg.
func New(db *gorm.DB, alg digest.Algorithm) *Chain {
	return &Chain{db: db, alg: alg, seq: sequencer.New(db)}
}

// Algorithm returns the hash algorithm of the chain.
func (c *Chain) Algorithm() digest.Algorithm {
	return c.alg
}

// Accept appends a message to endpointID/box and returns its serial. A
// rejected message leaves the box and its hash untouched.
//
// Only size_max can reject a message with ErrSizeViolation. size_min never
// refuses traffic; it gates ReadyForProcessing.
func (c *Chain) Accept(endpointID string, box models.Box, in Incoming) (int64, error) {
	if !box.Valid() {
		return 0, fmt.Errorf("boxchain: unknown box %q", box)
	}
	msgHash := c.alg.Hex([]byte(in.Text))
	if in.MessageHash != "" && in.MessageHash != msgHash {
		return 0, fmt.Errorf("%w: got %s, text hashes to %s", ErrHashMismatch, in.MessageHash, msgHash)
	}

	return c.seq.Assign(endpointID, box, func(tx *gorm.DB, ep *models.Endpoint, serial int64) error {
		var dup int64
		if err := tx.Model(&models.Message{}).
			Where("endpoint_id = ? AND box = ? AND message_hash = ?", endpointID, box, msgHash).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("boxchain: duplicate check: %w", err)
		}
		if dup > 0 {
			return fmt.Errorf("%w: %s in %s/%s", ErrDuplicateMessage, msgHash, endpointID, box)
		}
		if !ep.Status.AcceptsTraffic(box) {
			return fmt.Errorf("%w: %s is %s, %s closed", ErrEndpointNotReady, endpointID, ep.Status, box)
		}
		if ep.SizeMax > 0 && serial > int64(ep.SizeMax) {
			return fmt.Errorf("%w: %s/%s holds %d of %d", ErrSizeViolation, endpointID, box, serial-1, ep.SizeMax)
		}
		if in.ExpectedSerial != 0 && in.ExpectedSerial != serial {
			return fmt.Errorf("%w: expected serial %d, next is %d", ErrOutOfOrder, in.ExpectedSerial, serial)
		}

		s := serial
		msg := models.Message{
			Serial:      &s,
			Sender:      in.Sender,
			Recipient:   in.Recipient,
			Text:        in.Text,
			MessageHash: msgHash,
			EndpointID:  endpointID,
			Box:         box,
		}
		if err := tx.Create(&msg).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return fmt.Errorf("%w: %s in %s/%s", ErrDuplicateMessage, msgHash, endpointID, box)
			}
			return fmt.Errorf("boxchain: insert message: %w", err)
		}

		next := c.alg.Chain(ep.BoxHash(box), msgHash)
		if err := tx.Model(&models.Endpoint{}).Where("endpoint_id = ?", endpointID).
			Update(models.BoxHashColumn(box), next).Error; err != nil {
			return fmt.Errorf("boxchain: extend chain %s/%s: %w", endpointID, box, err)
		}
		return nil
	})
}

// Messages returns the messages of endpointID/box in serial order.
func Messages(gormDB *gorm.DB, endpointID string, box models.Box) ([]models.Message, error) {
	var out []models.Message
	if err := gormDB.Where("endpoint_id = ? AND box = ?", endpointID, box).
		Order("serial ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("boxchain: messages %s/%s: %w", endpointID, box, err)
	}
	return out, nil
}

// Replay recomputes the chain hash over messages in the given order.
func Replay(alg digest.Algorithm, msgs []models.Message) string {
	h := ""
	for _, m := range msgs {
		h = alg.Chain(h, m.MessageHash)
	}
	return h
}
