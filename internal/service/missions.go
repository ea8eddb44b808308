package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
	"github.com/GaretJax/bmcc/internal/tracking"
)

// MissionService holds the operator actions on missions, assets and beacons.
type MissionService struct {
	Repo   repository.Repository
	Deps   tracking.Deps
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *MissionService) UpdateParameters(ctx context.Context, missionID uuid.UUID, params repository.MissionParameters) (*models.Mission, error) {
	mission, err := s.Repo.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if mission == nil {
		return nil, ErrMissionNotFound
	}
	// Rates are passed to the prediction service as given, sign included.
	if params.BurstAltitude != nil && *params.BurstAltitude <= 0 {
		return nil, fmt.Errorf("%w: burst altitude must be positive", ErrInvalidInput)
	}
	if err := s.Repo.UpdateMissionParameters(ctx, missionID, params); err != nil {
		return nil, err
	}
	return s.Repo.GetMission(ctx, missionID)
}

func (s *MissionService) asset(ctx context.Context, missionID, assetID uuid.UUID) (*models.Asset, error) {
	asset, err := s.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil || asset.MissionID != missionID {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// MarkLaunched records the launch time and, optionally, the launch site. A
// site belonging to another mission is rejected by the store.
func (s *MissionService) MarkLaunched(ctx context.Context, missionID, assetID uuid.UUID, siteID *uuid.UUID, at *time.Time) (*models.Asset, error) {
	asset, err := s.asset(ctx, missionID, assetID)
	if err != nil {
		return nil, err
	}
	launchedAt := s.now()
	if at != nil {
		launchedAt = at.UTC()
	}
	asset.LaunchedAt = &launchedAt
	if siteID != nil {
		asset.LaunchSiteID = siteID
	}
	if err := s.Repo.SaveAssetFlight(ctx, asset); err != nil {
		return nil, err
	}
	s.logger().Info("asset launched", zap.String("asset_id", asset.ID.String()), zap.Time("launched_at", launchedAt))
	return asset, nil
}

func (s *MissionService) MarkLanded(ctx context.Context, missionID, assetID uuid.UUID, at *time.Time, location *models.Point) (*models.Asset, error) {
	asset, err := s.asset(ctx, missionID, assetID)
	if err != nil {
		return nil, err
	}
	if location != nil && !location.Valid() {
		return nil, fmt.Errorf("%w: landing location out of range", ErrInvalidInput)
	}
	landedAt := s.now()
	if at != nil {
		landedAt = at.UTC()
	}
	asset.LandedAt = &landedAt
	if location != nil {
		asset.LandingLocation = location
	}
	if err := s.Repo.SaveAssetFlight(ctx, asset); err != nil {
		return nil, err
	}
	s.logger().Info("asset landed", zap.String("asset_id", asset.ID.String()), zap.Time("landed_at", landedAt))
	return asset, nil
}

// QueueMessage stores a message for delivery on the beacon's next OwnTracks
// report.
func (s *MissionService) QueueMessage(ctx context.Context, beaconID uuid.UUID, message json.RawMessage) (*models.OutboundMessage, error) {
	beacon, err := s.Repo.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, err
	}
	if beacon == nil {
		return nil, ErrBeaconNotFound
	}
	kind, err := models.ParseBackendKind(beacon.BackendClassPath)
	if err != nil || kind != tracking.KindOwnTracks {
		return nil, ErrBackendMismatch
	}
	var probe map[string]any
	if err := json.Unmarshal(message, &probe); err != nil {
		return nil, fmt.Errorf("%w: message must be a JSON object", ErrInvalidInput)
	}
	if t, _ := probe["_type"].(string); t == "" {
		return nil, fmt.Errorf("%w: message needs a _type", ErrInvalidInput)
	}
	item := &models.OutboundMessage{BeaconID: beacon.ID, Message: datatypes.JSON(message)}
	if err := s.Repo.EnqueueOutboundMessage(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// BackendStatus describes how a beacon's backend resolves.
type BackendStatus struct {
	BeaconID  uuid.UUID     `json:"beacon_id"`
	ClassPath string        `json:"class_path"`
	Kind      tracking.Kind `json:"kind,omitempty"`
	Resolved  bool          `json:"resolved"`
	Error     string        `json:"error,omitempty"`
}

func (s *MissionService) BackendStatus(ctx context.Context, beaconID uuid.UUID) (*BackendStatus, error) {
	beacon, err := s.Repo.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, err
	}
	if beacon == nil {
		return nil, ErrBeaconNotFound
	}
	deps := s.Deps
	if deps.Repo == nil {
		deps.Repo = s.Repo
	}
	out := &BackendStatus{BeaconID: beacon.ID, ClassPath: beacon.BackendClassPath}
	backend := tracking.Lookup(deps, beacon)
	if backend != nil {
		out.Kind = backend.Kind()
		out.Resolved = true
	}
	if err := beacon.BackendError(); err != nil {
		out.Error = err.Error()
	}
	return out, nil
}

func (s *MissionService) LatestPing(ctx context.Context, beaconID uuid.UUID) (*models.Ping, error) {
	beacon, err := s.Repo.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, err
	}
	if beacon == nil {
		return nil, ErrBeaconNotFound
	}
	return s.Repo.LatestPing(ctx, beacon.ID)
}

func (s *MissionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *MissionService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
