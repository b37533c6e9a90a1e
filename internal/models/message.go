package models

import "time"

// Message is one entry in an endpoint box. Serial orders messages within
// (EndpointID, Box) and MessageHash is unique within it.
type Message struct {
	ID          uint   `gorm:"primaryKey;autoIncrement;index:idx_message_box_order,priority:3"`
	Serial      *int64 `gorm:"index"`
	Sender      string `gorm:"size:255;not null"`
	Recipient   string `gorm:"size:255;not null"`
	Text        string `gorm:"type:text"`
	MessageHash string `gorm:"size:255;not null;uniqueIndex:idx_message_box_hash,priority:3"`
	EndpointID  string `gorm:"size:255;not null;uniqueIndex:idx_message_box_hash,priority:1;index:idx_message_box_order,priority:1"`
	Box         Box    `gorm:"size:16;not null;uniqueIndex:idx_message_box_hash,priority:2;index:idx_message_box_order,priority:2"`
	CreatedAt   time.Time
}
