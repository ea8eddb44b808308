package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrLaunchSiteMission  = errors.New("launch site belongs to a different mission")
	ErrLaunchSiteNotFound = errors.New("launch site not found")
)

type AssetType string

const (
	AssetBalloon AssetType = "balloon"
	AssetVehicle AssetType = "vehicle"
)

// Asset is a tracked object (a balloon payload or a recovery vehicle).
type Asset struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MissionID uuid.UUID `gorm:"type:uuid;not null;index" json:"mission_id"`
	Mission   *Mission  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Callsign  string    `gorm:"type:varchar(64)" json:"callsign"`
	AssetType AssetType `gorm:"type:varchar(20);not null" json:"asset_type"`
	Notes     string    `gorm:"type:text" json:"notes"`

	LaunchSiteID    *uuid.UUID  `gorm:"type:uuid;index" json:"launch_site_id"`
	LaunchSite      *LaunchSite `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	LaunchedAt      *time.Time  `gorm:"type:timestamptz" json:"launched_at"`
	LandedAt        *time.Time  `gorm:"type:timestamptz" json:"landed_at"`
	LandingLocation *Point      `gorm:"type:geography(Point,4326)" json:"landing_location"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// BeforeSave rejects a launch site that belongs to another mission.
func (a *Asset) BeforeSave(tx *gorm.DB) error {
	if a.LaunchSiteID == nil {
		return nil
	}
	var missionID uuid.UUID
	err := tx.Session(&gorm.Session{NewDB: true}).
		Raw("SELECT mission_id FROM launch_sites WHERE id = ?", *a.LaunchSiteID).
		Row().
		Scan(&missionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLaunchSiteNotFound
	}
	if err != nil {
		return fmt.Errorf("load launch site mission: %w", err)
	}
	return a.CheckLaunchSiteMission(missionID)
}

// CheckLaunchSiteMission validates the launch-site/mission invariant against
// the mission of the referenced site.
func (a *Asset) CheckLaunchSiteMission(siteMissionID uuid.UUID) error {
	if a.LaunchSiteID == nil {
		return nil
	}
	if siteMissionID != a.MissionID {
		return ErrLaunchSiteMission
	}
	return nil
}
