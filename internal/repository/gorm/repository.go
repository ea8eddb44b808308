package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- missions & launch sites ------------------------------------------------

func (s *Store) CreateMission(ctx context.Context, item *models.Mission) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Mission
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateMissionParameters(ctx context.Context, id uuid.UUID, params repository.MissionParameters) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ascent_rate":    params.AscentRate,
			"burst_altitude": params.BurstAltitude,
			"descent_rate":   params.DescentRate,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (s *Store) CreateLaunchSite(ctx context.Context, item *models.LaunchSite) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (s *Store) GetLaunchSite(ctx context.Context, id uuid.UUID) (*models.LaunchSite, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.LaunchSite
	err := s.db.WithContext(ctx).Preload("Mission").First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListUpcomingLaunchSites(ctx context.Context, now time.Time) ([]models.LaunchSite, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.LaunchSite
	if err := s.db.WithContext(ctx).
		Preload("Mission").
		Where("intended_launch_at > ?", now).
		Order("mission_id asc, intended_launch_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListLaunchSitePredictionIDs(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var raw []string
	if err := s.db.WithContext(ctx).
		Table("launch_site_prediction_history h").
		Joins("JOIN predictions p ON p.id = h.prediction_id").
		Where("h.launch_site_id = ?", siteID).
		Order("p.created_at asc").
		Pluck("h.prediction_id", &raw).Error; err != nil {
		return nil, err
	}
	return parseUUIDs(raw)
}

func (s *Store) SetLaunchSitePrediction(ctx context.Context, siteID uuid.UUID, predictionID uuid.UUID) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.LaunchSite{}).
		Where("id = ?", siteID).
		Updates(map[string]any{"prediction_id": predictionID, "updated_at": time.Now().UTC()}).
		Error
}

// --- assets & beacons -------------------------------------------------------

func (s *Store) CreateAsset(ctx context.Context, item *models.Asset) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (s *Store) GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Asset
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveAssetFlight persists the launch and landing fields. The asset's
// BeforeSave hook validates the launch site.
func (s *Store) SaveAssetFlight(ctx context.Context, item *models.Asset) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(item).
		Select("launch_site_id", "launched_at", "landed_at", "landing_location", "updated_at").
		Updates(item).Error
}

func (s *Store) CreateBeacon(ctx context.Context, item *models.Beacon) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (s *Store) GetBeacon(ctx context.Context, id uuid.UUID) (*models.Beacon, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Beacon
	err := s.db.WithContext(ctx).Preload("Asset").First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindActiveBeacon returns the first active beacon whose identifier is one of
// identifiers, in the given preference order, restricted to classPaths.
func (s *Store) FindActiveBeacon(ctx context.Context, identifiers []string, classPaths []string) (*models.Beacon, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	identifiers = cleanStrings(identifiers)
	if len(identifiers) == 0 {
		return nil, nil
	}
	var items []models.Beacon
	query := s.db.WithContext(ctx).
		Preload("Asset").
		Where("active = ?", true).
		Where("identifier IN ?", identifiers)
	if len(classPaths) > 0 {
		query = query.Where("backend_class_path IN ?", classPaths)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	for _, id := range identifiers {
		for i := range items {
			if items[i].Identifier == id {
				return &items[i], nil
			}
		}
	}
	return nil, nil
}

func (s *Store) ListActiveBeacons(ctx context.Context, classPaths []string) ([]models.Beacon, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Beacon
	query := s.db.WithContext(ctx).Preload("Asset").Where("active = ?", true)
	if len(classPaths) > 0 {
		query = query.Where("backend_class_path IN ?", classPaths)
	}
	if err := query.Order("identifier asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveSiblingBeacons(ctx context.Context, missionID uuid.UUID, excludeID uuid.UUID) ([]models.Beacon, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Beacon
	if err := s.db.WithContext(ctx).
		Select("beacons.*").
		Preload("Asset").
		Joins("JOIN assets ON assets.id = beacons.asset_id").
		Where("assets.mission_id = ?", missionID).
		Where("beacons.active = ?", true).
		Where("beacons.id <> ?", excludeID).
		Order("beacons.identifier asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- pings ------------------------------------------------------------------

func (s *Store) CreatePing(ctx context.Context, item *models.Ping) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkOwnership(tx, item); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(item).Error
	})
}

// CreatePingIfAbsent inserts item unless the beacon already has a ping at the
// same reported_at. Concurrent callers for one beacon are serialized by a
// transaction-scoped advisory lock.
func (s *Store) CreatePingIfAbsent(ctx context.Context, item *models.Ping) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", item.BeaconID.String()).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Ping{}).
			Where("beacon_id = ? AND reported_at = ?", item.BeaconID, item.ReportedAt).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := checkOwnership(tx, item); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(item).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

type ownerRow struct {
	AssetID   uuid.UUID
	MissionID uuid.UUID
}

// checkOwnership locks the beacon and asset rows and verifies the ping still
// carries the beacon's current asset and that asset's mission.
func checkOwnership(tx *gorm.DB, item *models.Ping) error {
	var rows []ownerRow
	if err := tx.Raw(
		`SELECT b.asset_id AS asset_id, a.mission_id AS mission_id
		FROM beacons b JOIN assets a ON a.id = b.asset_id
		WHERE b.id = ? FOR SHARE`,
		item.BeaconID,
	).Scan(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 || rows[0].AssetID != item.AssetID || rows[0].MissionID != item.MissionID {
		return repository.ErrOwnershipChanged
	}
	return nil
}

func (s *Store) LatestPing(ctx context.Context, beaconID uuid.UUID) (*models.Ping, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Ping
	err := s.db.WithContext(ctx).
		Where("beacon_id = ?", beaconID).
		Order("reported_at desc, id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) LatestPingsByBeacons(ctx context.Context, beaconIDs []uuid.UUID) (map[uuid.UUID]models.Ping, error) {
	out := make(map[uuid.UUID]models.Ping, len(beaconIDs))
	if s == nil || s.db == nil || len(beaconIDs) == 0 {
		return out, nil
	}
	var items []models.Ping
	if err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT ON (beacon_id) * FROM pings
		WHERE beacon_id IN ?
		ORDER BY beacon_id, reported_at DESC, id DESC`,
		beaconIDs,
	).Scan(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.BeaconID] = item
	}
	return out, nil
}

// --- outbound messages ------------------------------------------------------

func (s *Store) EnqueueOutboundMessage(ctx context.Context, item *models.OutboundMessage) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (s *Store) ListPendingOutboundMessages(ctx context.Context, beaconID uuid.UUID) ([]models.OutboundMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.OutboundMessage
	if err := s.db.WithContext(ctx).
		Where("beacon_id = ? AND sent_at IS NULL", beaconID).
		Order("created_at asc, id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkOutboundMessagesSent(ctx context.Context, ids []uint64, at time.Time) error {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.OutboundMessage{}).
		Where("id IN ? AND sent_at IS NULL", ids).
		Update("sent_at", at).Error
}

// --- predictions ------------------------------------------------------------

// CreatePrediction inserts item and, when siteID is set, appends it to the
// launch site's prediction history in the same transaction.
func (s *Store) CreatePrediction(ctx context.Context, item *models.Prediction, siteID *uuid.UUID) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		if siteID == nil {
			return nil
		}
		return tx.Exec(
			`INSERT INTO launch_site_prediction_history (launch_site_id, prediction_id)
			VALUES (?, ?) ON CONFLICT DO NOTHING`,
			*siteID, item.ID,
		).Error
	})
}

func (s *Store) GetPrediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Prediction
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdatePredictionStatus(ctx context.Context, id uuid.UUID, status models.PredictionStatus) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).
		Error
}

func (s *Store) RecordPredictionFailure(ctx context.Context, id uuid.UUID, lastError string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ApplyPredictionResult writes every derived field, the raw payload and the
// completed status in a single statement.
func (s *Store) ApplyPredictionResult(ctx context.Context, id uuid.UUID, result models.PredictionResult) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"bursting_at":      result.BurstingAt,
			"burst_location":   result.BurstLocation,
			"burst_altitude":   result.BurstAltitude,
			"landing_at":       result.LandingAt,
			"landing_location": result.LandingLocation,
			"landing_altitude": result.LandingAltitude,
			"prediction":       result.Payload,
			"status":           models.PredictionCompleted,
			"last_error":       nil,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// --- poll state & settings --------------------------------------------------

func (s *Store) GetPollState(ctx context.Context, scope string) (*models.PollState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.PollState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SavePollState(ctx context.Context, state *models.PollState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_attempt_at",
			"last_success_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
