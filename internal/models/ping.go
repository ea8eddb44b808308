package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Ping is one normalized position report. Rows are append-only.
type Ping struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	MissionID uuid.UUID `gorm:"type:uuid;not null;index" json:"mission_id"`
	Mission   *Mission  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Asset     *Asset    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	BeaconID  uuid.UUID `gorm:"type:uuid;not null;index:idx_pings_beacon_reported,priority:1" json:"beacon_id"`
	Beacon    *Beacon   `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	ReportedAt time.Time `gorm:"type:timestamptz;not null;index:idx_pings_beacon_reported,priority:2" json:"reported_at"`
	Position   Point     `gorm:"type:geography(Point,4326);not null" json:"position"`
	Altitude   *int      `json:"altitude"`
	Accuracy   *int      `json:"accuracy"`
	Speed      *int      `json:"speed"`
	Course     *float64  `json:"course"`

	// Metadata is the raw source payload.
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata"`

	PredictionID *uuid.UUID  `gorm:"type:uuid" json:"prediction_id,omitempty"`
	Prediction   *Prediction `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Ping) TableName() string {
	return "pings"
}
