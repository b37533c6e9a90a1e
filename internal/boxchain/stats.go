package boxchain

import (
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/sequencer"
)

// BoxStats summarizes one box. Counts derive from serials.
type BoxStats struct {
	Count int64  `json:"count"`
	Hash  string `json:"hash"`
}

// Stats summarizes an endpoint's boxes.
type Stats struct {
	EndpointID string                  `json:"endpoint_id"`
	Status     models.EndpointStatus   `json:"status"`
	SizeMin    int                     `json:"size_min"`
	SizeMax    int                     `json:"size_max"`
	Boxes      map[models.Box]BoxStats `json:"boxes"`
}

// Stats returns per-box counters and hashes for endpointID.
func (c *Chain) Stats(endpointID string) (*Stats, error) {
	ep, err := endpoint.Get(c.db, endpointID)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		EndpointID: ep.EndpointID,
		Status:     ep.Status,
		SizeMin:    ep.SizeMin,
		SizeMax:    ep.SizeMax,
		Boxes:      make(map[models.Box]BoxStats, 2),
	}
	for _, box := range models.Boxes() {
		n, err := sequencer.LastSerial(c.db, endpointID, box)
		if err != nil {
			return nil, err
		}
		st.Boxes[box] = BoxStats{Count: n, Hash: ep.BoxHash(box)}
	}
	return st, nil
}

// ReadyForProcessing reports whether the inbox holds at least size_min
// messages and the endpoint has been opened.
func (c *Chain) ReadyForProcessing(endpointID string) (bool, error) {
	st, err := c.Stats(endpointID)
	if err != nil {
		return false, err
	}
	switch st.Status {
	case models.EndpointOpen, models.EndpointFull, models.EndpointClosed:
	default:
		return false, nil
	}
	return st.Boxes[models.BoxInbox].Count >= int64(st.SizeMin), nil
}

// Delivery is the outcome of forwarding a message into one linked box.
type Delivery struct {
	EndpointID string     `json:"endpoint_id"`
	Box        models.Box `json:"box"`
	Serial     int64      `json:"serial,omitempty"`
	Err        error      `json:"-"`
}

// Forward copies message messageID of endpointID/box into every box linked
// downstream of it. Each delivery is accepted independently; failures are
// reported per delivery and joined into the returned error.
func (c *Chain) Forward(endpointID string, box models.Box, messageID uint) ([]Delivery, error) {
	var msg models.Message
	if err := c.db.Where("id = ? AND endpoint_id = ? AND box = ?", messageID, endpointID, box).
		First(&msg).Error; err != nil {
		return nil, fmt.Errorf("boxchain: message %d in %s/%s: %w", messageID, endpointID, box, err)
	}
	links, err := endpoint.Downstream(c.db, endpointID, box)
	if err != nil {
		return nil, err
	}

	var errs []error
	out := make([]Delivery, 0, len(links))
	for _, l := range links {
		d := Delivery{EndpointID: l.EndpointID, Box: l.ToBox}
		d.Serial, d.Err = c.Accept(l.EndpointID, l.ToBox, Incoming{
			Sender:      msg.Sender,
			Recipient:   msg.Recipient,
			Text:        msg.Text,
			MessageHash: msg.MessageHash,
		})
		if d.Err != nil {
			log.Printf("boxchain: forward %s/%s -> %s/%s: %v", endpointID, box, l.EndpointID, l.ToBox, d.Err)
			errs = append(errs, d.Err)
		}
		out = append(out, d)
	}
	return out, errors.Join(errs...)
}
