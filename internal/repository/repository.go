package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GaretJax/bmcc/internal/models"
)

// ErrOwnershipChanged is returned when a ping's asset/mission pair no longer
// matches the beacon's current owner at insertion time.
var ErrOwnershipChanged = errors.New("beacon ownership changed")

// Lookups return (nil, nil) when the row does not exist.
type Repository interface {
	// Missions and launch sites.
	CreateMission(ctx context.Context, item *models.Mission) error
	GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	UpdateMissionParameters(ctx context.Context, id uuid.UUID, params MissionParameters) error
	CreateLaunchSite(ctx context.Context, item *models.LaunchSite) error
	GetLaunchSite(ctx context.Context, id uuid.UUID) (*models.LaunchSite, error)
	ListUpcomingLaunchSites(ctx context.Context, now time.Time) ([]models.LaunchSite, error)
	ListLaunchSitePredictionIDs(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error)
	SetLaunchSitePrediction(ctx context.Context, siteID uuid.UUID, predictionID uuid.UUID) error

	// Assets and beacons.
	CreateAsset(ctx context.Context, item *models.Asset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	SaveAssetFlight(ctx context.Context, item *models.Asset) error
	CreateBeacon(ctx context.Context, item *models.Beacon) error
	GetBeacon(ctx context.Context, id uuid.UUID) (*models.Beacon, error)
	FindActiveBeacon(ctx context.Context, identifiers []string, classPaths []string) (*models.Beacon, error)
	ListActiveBeacons(ctx context.Context, classPaths []string) ([]models.Beacon, error)
	ListActiveSiblingBeacons(ctx context.Context, missionID uuid.UUID, excludeID uuid.UUID) ([]models.Beacon, error)

	// Pings.
	CreatePing(ctx context.Context, item *models.Ping) error
	CreatePingIfAbsent(ctx context.Context, item *models.Ping) (bool, error)
	LatestPing(ctx context.Context, beaconID uuid.UUID) (*models.Ping, error)
	LatestPingsByBeacons(ctx context.Context, beaconIDs []uuid.UUID) (map[uuid.UUID]models.Ping, error)

	// Outbound messages.
	EnqueueOutboundMessage(ctx context.Context, item *models.OutboundMessage) error
	ListPendingOutboundMessages(ctx context.Context, beaconID uuid.UUID) ([]models.OutboundMessage, error)
	MarkOutboundMessagesSent(ctx context.Context, ids []uint64, at time.Time) error

	// Predictions.
	CreatePrediction(ctx context.Context, item *models.Prediction, siteID *uuid.UUID) error
	GetPrediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error)
	UpdatePredictionStatus(ctx context.Context, id uuid.UUID, status models.PredictionStatus) error
	RecordPredictionFailure(ctx context.Context, id uuid.UUID, lastError string) error
	ApplyPredictionResult(ctx context.Context, id uuid.UUID, result models.PredictionResult) error

	// Poll state and runtime settings.
	GetPollState(ctx context.Context, scope string) (*models.PollState, error)
	SavePollState(ctx context.Context, state *models.PollState) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
}

type MissionParameters struct {
	AscentRate    *float64
	BurstAltitude *float64
	DescentRate   *float64
}
