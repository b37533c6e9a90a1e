package boxchain

import (
	"errors"
	"fmt"

	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/sequencer"
	"gorm.io/gorm"
)

// Report is the outcome of replaying a box chain.
type Report struct {
	EndpointID string     `json:"endpoint_id"`
	Box        models.Box `json:"box"`
	Count      int64      `json:"count"`
	Stored     string     `json:"stored_hash"`
	Computed   string     `json:"computed_hash"`
}

// Valid reports whether the replay reproduced the stored hash.
func (r *Report) Valid() bool {
	return r.Stored == r.Computed
}

// Verify replays endpointID/box in serial order. Each message hash must
// match its text, serials must be 1..n, and the replayed chain must equal
// the stored hash; otherwise the returned error wraps ErrChainBroken or
// sequencer.ErrSerialGap. The report is returned either way. The box is
// read under the sequencer's lock so concurrent Accepts cannot interleave.
func (c *Chain) Verify(endpointID string, box models.Box) (*Report, error) {
	var (
		rep    *Report
		broken error
	)
	err := c.seq.Hold(endpointID, box, func(tx *gorm.DB, ep *models.Endpoint) error {
		msgs, err := Messages(tx, endpointID, box)
		if err != nil {
			return err
		}
		rep = &Report{
			EndpointID: endpointID,
			Box:        box,
			Count:      int64(len(msgs)),
			Stored:     ep.BoxHash(box),
			Computed:   Replay(c.alg, msgs),
		}
		broken = checkChain(tx, c.alg, rep, msgs)
		return nil
	})
	if errors.Is(err, sequencer.ErrEndpointNotFound) {
		return nil, fmt.Errorf("%w: %s", endpoint.ErrNotFound, endpointID)
	}
	if err != nil {
		return nil, err
	}
	return rep, broken
}

func checkChain(tx *gorm.DB, alg digest.Algorithm, rep *Report, msgs []models.Message) error {
	if _, err := sequencer.CheckContinuity(tx, rep.EndpointID, rep.Box); err != nil {
		return err
	}
	for _, m := range msgs {
		if alg.Hex([]byte(m.Text)) != m.MessageHash {
			return fmt.Errorf("%w: %s/%s serial %d text does not match its hash", ErrChainBroken, rep.EndpointID, rep.Box, *m.Serial)
		}
	}
	if !rep.Valid() {
		return fmt.Errorf("%w: %s/%s stored %q, replayed %q", ErrChainBroken, rep.EndpointID, rep.Box, rep.Stored, rep.Computed)
	}
	return nil
}
