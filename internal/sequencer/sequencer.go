// Package sequencer assigns per-box message serials. It is the only writer
// of serials: callers extend a box through Assign, which holds the box lock
// and the endpoint row lock while the next serial is computed and used.
package sequencer

import (
	"errors"
	"fmt"

	"github.com/zulandar/panoramix/internal/lockset"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEndpointNotFound means the endpoint does not exist.
	ErrEndpointNotFound = errors.New("sequencer: endpoint not found")
	// ErrSerialGap means stored serials are not exactly 1..n.
	ErrSerialGap = errors.New("sequencer: serial gap")
)

// NextSerial returns the serial the next message of endpointID/box would
// receive. It does not reserve it.
func NextSerial(db *gorm.DB, endpointID string, box models.Box) (int64, error) {
	last, err := LastSerial(db, endpointID, box)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// LastSerial returns the highest assigned serial, or 0 for an empty box.
func LastSerial(db *gorm.DB, endpointID string, box models.Box) (int64, error) {
	var last int64
	err := db.Model(&models.Message{}).
		Where("endpoint_id = ? AND box = ?", endpointID, box).
		Select("COALESCE(MAX(serial), 0)").Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("sequencer: last serial %s/%s: %w", endpointID, box, err)
	}
	return last, nil
}

// AssignFunc does the work that consumes a serial. ep is locked for the
// duration of the call; returning an error rolls everything back.
type AssignFunc func(tx *gorm.DB, ep *models.Endpoint, serial int64) error

// Sequencer serializes serial assignment per (endpoint, box).
type Sequencer struct {
	db    *gorm.DB
	locks *lockset.Set
}

// New returns a Sequencer over db.
func New(db *gorm.DB) *Sequencer {
	return &Sequencer{db: db, locks: lockset.New()}
}

// Assign computes the next serial of endpointID/box and passes it to fn in
// a single transaction. It returns the serial fn committed.
func (s *Sequencer) Assign(endpointID string, box models.Box, fn AssignFunc) (int64, error) {
	var serial int64
	err := s.Hold(endpointID, box, func(tx *gorm.DB, ep *models.Endpoint) error {
		next, err := NextSerial(tx, endpointID, box)
		if err != nil {
			return err
		}
		if err := fn(tx, ep, next); err != nil {
			return err
		}
		serial = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return serial, nil
}

// Hold runs fn in a transaction while holding the same box lock and
// endpoint row lock as Assign, so fn sees the box and its stored hash at
// a single point between writes.
func (s *Sequencer) Hold(endpointID string, box models.Box, fn func(tx *gorm.DB, ep *models.Endpoint) error) error {
	if !box.Valid() {
		return fmt.Errorf("sequencer: unknown box %q", box)
	}

	unlock := s.locks.Lock(lockset.Key(endpointID, string(box)))
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var ep models.Endpoint
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("endpoint_id = ?", endpointID).First(&ep).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrEndpointNotFound, endpointID)
			}
			return fmt.Errorf("sequencer: load %s: %w", endpointID, err)
		}
		return fn(tx, &ep)
	})
}

// CheckContinuity verifies that the serials of endpointID/box are exactly
// 1..n with no holes, duplicates or unassigned rows. It returns n.
func CheckContinuity(db *gorm.DB, endpointID string, box models.Box) (int64, error) {
	var msgs []models.Message
	if err := db.Select("id", "serial").
		Where("endpoint_id = ? AND box = ?", endpointID, box).
		Order("serial ASC").Find(&msgs).Error; err != nil {
		return 0, fmt.Errorf("sequencer: serials %s/%s: %w", endpointID, box, err)
	}
	for i, m := range msgs {
		want := int64(i + 1)
		s := m.Serial
		if s == nil {
			return 0, fmt.Errorf("%w: %s/%s has a message without serial", ErrSerialGap, endpointID, box)
		}
		if *s != want {
			return 0, fmt.Errorf("%w: %s/%s expected serial %d, found %d", ErrSerialGap, endpointID, box, want, *s)
		}
	}
	return int64(len(msgs)), nil
}
