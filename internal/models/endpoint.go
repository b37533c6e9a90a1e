package models

import "time"

// Endpoint is a peer-owned message channel with an inbox and an outbox.
type Endpoint struct {
	EndpointID     string         `gorm:"primaryKey;size:255"`
	PeerID         string         `gorm:"size:255;not null;index"`
	Description    string         `gorm:"size:255"`
	Public         bool           `gorm:"not null;default:false"`
	SizeMin        int            `gorm:"not null;default:0"`
	SizeMax        int            `gorm:"not null;default:0"`
	EndpointType   string         `gorm:"size:255;not null"`
	EndpointParams string         `gorm:"type:text"`
	InboxHash      string         `gorm:"size:255"`
	OutboxHash     string         `gorm:"size:255"`
	ProcessProof   string         `gorm:"type:text"`
	Status         EndpointStatus `gorm:"size:32;not null;default:PENDING"`
	CreatedAt      time.Time
}

// BoxHash returns the stored rolling hash for box.
func (e *Endpoint) BoxHash(box Box) string {
	if box == BoxOutbox {
		return e.OutboxHash
	}
	return e.InboxHash
}

// BoxHashColumn returns the column holding the rolling hash for box.
func BoxHashColumn(box Box) string {
	if box == BoxOutbox {
		return "outbox_hash"
	}
	return "inbox_hash"
}

// EndpointLink is a directed routing edge from_endpoint/from_box -> endpoint/to_box.
type EndpointLink struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	EndpointID     string `gorm:"size:255;not null;index"`
	ToBox          Box    `gorm:"size:16;not null"`
	FromBox        Box    `gorm:"size:16;not null"`
	FromEndpointID string `gorm:"size:255;not null;index"`
}

// EndpointConsensusLog records an endpoint status ratified by a consensus.
type EndpointConsensusLog struct {
	ID          uint           `gorm:"primaryKey;autoIncrement;index:idx_endpoint_log,priority:2"`
	EndpointID  string         `gorm:"size:255;not null;index:idx_endpoint_log,priority:1"`
	ConsensusID string         `gorm:"size:255;not null"`
	Status      EndpointStatus `gorm:"size:32;not null"`
	Timestamp   time.Time      `gorm:"not null"`
}
