package db

import (
	"github.com/GaretJax/bmcc/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	// geography columns need PostGIS before any table is created.
	if err := db.Gorm.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
		return err
	}

	return db.Gorm.AutoMigrate(
		&models.Mission{},
		&models.Prediction{},
		&models.LaunchSite{},
		&models.Asset{},
		&models.Beacon{},
		&models.Ping{},
		&models.OutboundMessage{},
		&models.PollState{},
		&models.SystemSetting{},
	)
}
