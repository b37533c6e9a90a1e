package models

import "time"

// Negotiation is a multi-party agreement process over a single text.
type Negotiation struct {
	ID        string            `gorm:"primaryKey;size:255"`
	Text      string            `gorm:"type:text"`
	Status    NegotiationStatus `gorm:"size:32;not null;default:OPEN;index"`
	Timestamp *time.Time
	Consensus *string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
}

// Contribution is one signer's signed version of the negotiated text.
// At most one contribution per (negotiation, signer) has Latest set.
type Contribution struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	NegotiationID string `gorm:"size:255;not null;index:idx_contribution_signer,priority:1"`
	Text          string `gorm:"type:text"`
	Latest        bool   `gorm:"not null;default:false;index"`
	SignerKeyID   string `gorm:"size:255;not null;index:idx_contribution_signer,priority:2"`
	Signature     string `gorm:"type:text"`
	CreatedAt     time.Time
}

// Signing declares a participant expected to sign a negotiation. Signature
// is filled in once the negotiation reaches consensus.
type Signing struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	NegotiationID string `gorm:"size:255;not null;uniqueIndex:idx_signing_signer,priority:1"`
	SignerKeyID   string `gorm:"size:255;not null;uniqueIndex:idx_signing_signer,priority:2"`
	Signature     string `gorm:"type:text"`
}
