package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OutboundMessage is an operator message held until the beacon's next report.
type OutboundMessage struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BeaconID uuid.UUID `gorm:"type:uuid;not null;index" json:"beacon_id"`
	Beacon   *Beacon   `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Message datatypes.JSON `gorm:"type:jsonb;not null" json:"message"`
	SentAt  *time.Time     `gorm:"type:timestamptz;index" json:"sent_at"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (OutboundMessage) TableName() string {
	return "outbound_messages"
}
