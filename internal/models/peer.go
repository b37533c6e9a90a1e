package models

import "time"

// Peer is a cryptographically identified participant.
type Peer struct {
	PeerID        string     `gorm:"primaryKey;size:255"`
	Name          string     `gorm:"size:255"`
	KeyType       int        `gorm:"not null"`
	CryptoBackend string     `gorm:"size:255;not null"`
	CryptoParams  string     `gorm:"type:text"`
	KeyData       string     `gorm:"size:767;not null;uniqueIndex"`
	Status        PeerStatus `gorm:"size:32;not null;default:PENDING"`
	CreatedAt     time.Time
}

// Owner authorizes a key to act for a peer.
type Owner struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PeerID     string `gorm:"size:255;not null;uniqueIndex:idx_owner_peer_key,priority:1"`
	OwnerKeyID string `gorm:"size:255;not null;uniqueIndex:idx_owner_peer_key,priority:2"`
}

// PeerConsensusLog records a peer status ratified by a consensus.
type PeerConsensusLog struct {
	ID          uint       `gorm:"primaryKey;autoIncrement;index:idx_peer_log,priority:2"`
	PeerID      string     `gorm:"size:255;not null;index:idx_peer_log,priority:1"`
	ConsensusID string     `gorm:"size:255;not null"`
	Status      PeerStatus `gorm:"size:32;not null"`
	Timestamp   time.Time  `gorm:"not null"`
}
