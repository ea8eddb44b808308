package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Mission is one recovery campaign. The three flight-profile fields are the
// defaults used for every prediction made for the mission's launch sites.
type Mission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`

	AscentRate    *float64 `json:"ascent_rate"`
	BurstAltitude *float64 `json:"burst_altitude"`
	DescentRate   *float64 `json:"descent_rate"`

	WindowStart *time.Time `gorm:"type:timestamptz" json:"window_start,omitempty"`
	WindowEnd   *time.Time `gorm:"type:timestamptz" json:"window_end,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Mission) TableName() string {
	return "missions"
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// HasFlightProfile reports whether ascent rate, burst altitude and descent
// rate are all set.
func (m *Mission) HasFlightProfile() bool {
	return m != nil && m.AscentRate != nil && m.BurstAltitude != nil && m.DescentRate != nil
}

// LaunchSite is a candidate or confirmed launch point of a mission.
type LaunchSite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MissionID uuid.UUID `gorm:"type:uuid;not null;index" json:"mission_id"`
	Mission   *Mission  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	Location         Point      `gorm:"type:geography(Point,4326);not null" json:"location"`
	Altitude         *float64   `json:"altitude"`
	IntendedLaunchAt *time.Time `gorm:"type:timestamptz;index" json:"intended_launch_at"`

	// PredictionID points at the most recent successful prediction.
	PredictionID      *uuid.UUID   `gorm:"type:uuid" json:"prediction_id"`
	Prediction        *Prediction  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	PredictionHistory []Prediction `gorm:"many2many:launch_site_prediction_history" json:"-"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (LaunchSite) TableName() string {
	return "launch_sites"
}

func (s *LaunchSite) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
