package api

import (
	"fmt"
	"time"

	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"gorm.io/gorm"
)

// NegotiationRow is the listing view of a negotiation.
type NegotiationRow struct {
	ID        string                   `json:"id"`
	Status    models.NegotiationStatus `json:"status"`
	Consensus string                   `json:"consensus,omitempty"`
	Timestamp *time.Time               `json:"timestamp,omitempty"`
}

// ContributionRow is one latest contribution.
type ContributionRow struct {
	ID        uint      `json:"id"`
	Signer    string    `json:"signer"`
	Text      string    `json:"text"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}

// NegotiationDetail is a negotiation with its signers and latest contributions.
type NegotiationDetail struct {
	NegotiationRow
	Text          string            `json:"text"`
	Signers       []string          `json:"signers"`
	Contributions []ContributionRow `json:"contributions"`
}

// PeerDetail is a peer with its owners.
type PeerDetail struct {
	PeerID        string            `json:"peer_id"`
	Name          string            `json:"name"`
	KeyType       int               `json:"key_type"`
	CryptoBackend string            `json:"crypto_backend"`
	KeyData       string            `json:"key_data"`
	Status        models.PeerStatus `json:"status"`
	Owners        []string          `json:"owners"`
}

// EndpointRow is the public view of an endpoint.
type EndpointRow struct {
	EndpointID   string                `json:"endpoint_id"`
	PeerID       string                `json:"peer_id"`
	Description  string                `json:"description"`
	Public       bool                  `json:"public"`
	SizeMin      int                   `json:"size_min"`
	SizeMax      int                   `json:"size_max"`
	EndpointType string                `json:"endpoint_type"`
	InboxHash    string                `json:"inbox_hash"`
	OutboxHash   string                `json:"outbox_hash"`
	Status       models.EndpointStatus `json:"status"`
}

// MessageRow is one message of a box.
type MessageRow struct {
	ID          uint      `json:"id"`
	Serial      int64     `json:"serial"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	Text        string    `json:"text"`
	MessageHash string    `json:"message_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

func endpointRow(e models.Endpoint) EndpointRow {
	return EndpointRow{
		EndpointID:   e.EndpointID,
		PeerID:       e.PeerID,
		Description:  e.Description,
		Public:       e.Public,
		SizeMin:      e.SizeMin,
		SizeMax:      e.SizeMax,
		EndpointType: e.EndpointType,
		InboxHash:    e.InboxHash,
		OutboxHash:   e.OutboxHash,
		Status:       e.Status,
	}
}

func messageRows(msgs []models.Message) []MessageRow {
	rows := make([]MessageRow, len(msgs))
	for i, m := range msgs {
		rows[i] = MessageRow{
			ID:          m.ID,
			Sender:      m.Sender,
			Recipient:   m.Recipient,
			Text:        m.Text,
			MessageHash: m.MessageHash,
			CreatedAt:   m.CreatedAt,
		}
		if m.Serial != nil {
			rows[i].Serial = *m.Serial
		}
	}
	return rows
}

func negotiationRow(n models.Negotiation) NegotiationRow {
	row := NegotiationRow{ID: n.ID, Status: n.Status, Timestamp: n.Timestamp}
	if n.Consensus != nil {
		row.Consensus = *n.Consensus
	}
	return row
}

// ListNegotiations returns negotiations, newest first, optionally filtered by status.
func ListNegotiations(db *gorm.DB, status string, limit int) ([]NegotiationRow, error) {
	q := db.Order("created_at DESC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ns []models.Negotiation
	if err := q.Find(&ns).Error; err != nil {
		return nil, fmt.Errorf("api: list negotiations: %w", err)
	}
	rows := make([]NegotiationRow, len(ns))
	for i, n := range ns {
		rows[i] = negotiationRow(n)
	}
	return rows, nil
}

// GetNegotiation assembles the detail view of a negotiation.
func GetNegotiation(db *gorm.DB, id string) (*NegotiationDetail, error) {
	n, err := ledger.Get(db, id)
	if err != nil {
		return nil, err
	}
	signers, err := ledger.RequiredSigners(db, id)
	if err != nil {
		return nil, err
	}
	latest, err := ledger.LatestContributions(db, id)
	if err != nil {
		return nil, err
	}
	d := &NegotiationDetail{
		NegotiationRow: negotiationRow(*n),
		Text:           n.Text,
		Signers:        signers,
		Contributions:  make([]ContributionRow, len(latest)),
	}
	for i, c := range latest {
		d.Contributions[i] = ContributionRow{
			ID:        c.ID,
			Signer:    c.SignerKeyID,
			Text:      c.Text,
			Signature: c.Signature,
			CreatedAt: c.CreatedAt,
		}
	}
	return d, nil
}

// GetPeer assembles the detail view of a peer.
func GetPeer(db *gorm.DB, id string) (*PeerDetail, error) {
	p, err := peer.Get(db, id)
	if err != nil {
		return nil, err
	}
	owners, err := peer.ListOwners(db, id)
	if err != nil {
		return nil, err
	}
	return &PeerDetail{
		PeerID:        p.PeerID,
		Name:          p.Name,
		KeyType:       p.KeyType,
		CryptoBackend: p.CryptoBackend,
		KeyData:       p.KeyData,
		Status:        p.Status,
		Owners:        owners,
	}, nil
}
