package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PredictionStatus string

const (
	PredictionCreated   PredictionStatus = "created"
	PredictionSubmitted PredictionStatus = "submitted"
	PredictionCompleted PredictionStatus = "completed"
	PredictionFailed    PredictionStatus = "failed"
)

// Prediction is one flight-path prediction request and, once completed, its
// burst and landing waypoints.
type Prediction struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Status    PredictionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Attempts  int              `gorm:"not null;default:0" json:"attempts"`
	LastError *string          `gorm:"type:text" json:"last_error,omitempty"`

	LaunchAt       time.Time `gorm:"type:timestamptz;not null" json:"launch_at"`
	LaunchLocation Point     `gorm:"type:geography(Point,4326);not null" json:"launch_location"`
	LaunchAltitude *float64  `json:"launch_altitude"`

	BurstingAt    *time.Time `gorm:"type:timestamptz" json:"bursting_at"`
	BurstLocation *Point     `gorm:"type:geography(Point,4326)" json:"burst_location"`
	BurstAltitude *float64   `json:"burst_altitude"`

	LandingAt       *time.Time `gorm:"type:timestamptz" json:"landing_at"`
	LandingLocation *Point     `gorm:"type:geography(Point,4326)" json:"landing_location"`
	LandingAltitude *float64   `json:"landing_altitude"`

	// Payload is the unmodified service response.
	Payload              datatypes.JSON    `gorm:"column:prediction;type:jsonb" json:"prediction,omitempty"`
	AdditionalParameters datatypes.JSONMap `gorm:"type:jsonb" json:"additional_parameters"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PredictionCreated
	}
	return nil
}

// PredictionResult carries the fields derived from a successful response.
type PredictionResult struct {
	BurstingAt      time.Time
	BurstLocation   Point
	BurstAltitude   float64
	LandingAt       time.Time
	LandingLocation Point
	LandingAltitude float64
	Payload         datatypes.JSON
}
