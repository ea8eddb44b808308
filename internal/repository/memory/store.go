// Package memory is an in-process Repository used for local runs without
// PostgreSQL and by service tests. It enforces the same ownership, dedup and
// launch-site checks as the gorm store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

type Store struct {
	mu sync.Mutex

	missions    map[uuid.UUID]models.Mission
	sites       map[uuid.UUID]models.LaunchSite
	history     map[uuid.UUID][]uuid.UUID
	assets      map[uuid.UUID]models.Asset
	beacons     map[uuid.UUID]models.Beacon
	pings       []models.Ping
	outbound    []models.OutboundMessage
	predictions map[uuid.UUID]models.Prediction
	pollStates  map[string]models.PollState
	settings    map[string]models.SystemSetting

	nextPingID     uint64
	nextOutboundID uint64
	nextSettingID  uint64

	now func() time.Time
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		missions:    map[uuid.UUID]models.Mission{},
		sites:       map[uuid.UUID]models.LaunchSite{},
		history:     map[uuid.UUID][]uuid.UUID{},
		assets:      map[uuid.UUID]models.Asset{},
		beacons:     map[uuid.UUID]models.Beacon{},
		predictions: map[uuid.UUID]models.Prediction{},
		pollStates:  map[string]models.PollState{},
		settings:    map[string]models.SystemSetting{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// --- missions & launch sites ------------------------------------------------

func (s *Store) CreateMission(ctx context.Context, item *models.Mission) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.missions[item.ID] = *item
	return nil
}

func (s *Store) GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.missions[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpdateMissionParameters(ctx context.Context, id uuid.UUID, params repository.MissionParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.missions[id]
	if !ok {
		return nil
	}
	item.AscentRate = params.AscentRate
	item.BurstAltitude = params.BurstAltitude
	item.DescentRate = params.DescentRate
	item.UpdatedAt = s.now()
	s.missions[id] = item
	return nil
}

func (s *Store) CreateLaunchSite(ctx context.Context, item *models.LaunchSite) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	stored := *item
	stored.Mission = nil
	stored.Prediction = nil
	stored.PredictionHistory = nil
	s.sites[item.ID] = stored
	return nil
}

func (s *Store) GetLaunchSite(ctx context.Context, id uuid.UUID) (*models.LaunchSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.sites[id]
	if !ok {
		return nil, nil
	}
	s.attachMission(&item)
	return &item, nil
}

func (s *Store) ListUpcomingLaunchSites(ctx context.Context, now time.Time) ([]models.LaunchSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.LaunchSite
	for _, item := range s.sites {
		if item.IntendedLaunchAt == nil || !item.IntendedLaunchAt.After(now) {
			continue
		}
		s.attachMission(&item)
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.MissionID != b.MissionID {
			return a.MissionID.String() < b.MissionID.String()
		}
		return a.IntendedLaunchAt.Before(*b.IntendedLaunchAt)
	})
	return items, nil
}

func (s *Store) ListLaunchSitePredictionIDs(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.history[siteID]...), nil
}

func (s *Store) SetLaunchSitePrediction(ctx context.Context, siteID uuid.UUID, predictionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.sites[siteID]
	if !ok {
		return nil
	}
	id := predictionID
	item.PredictionID = &id
	item.UpdatedAt = s.now()
	s.sites[siteID] = item
	return nil
}

func (s *Store) attachMission(site *models.LaunchSite) {
	if m, ok := s.missions[site.MissionID]; ok {
		site.Mission = &m
	}
}

// --- assets & beacons -------------------------------------------------------

func (s *Store) CreateAsset(ctx context.Context, item *models.Asset) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAssetLaunchSite(item); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	stored := *item
	stored.Mission = nil
	stored.LaunchSite = nil
	s.assets[item.ID] = stored
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) SaveAssetFlight(ctx context.Context, item *models.Asset) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.assets[item.ID]
	if !ok {
		return nil
	}
	if err := s.checkAssetLaunchSite(item); err != nil {
		return err
	}
	stored.LaunchSiteID = item.LaunchSiteID
	stored.LaunchedAt = item.LaunchedAt
	stored.LandedAt = item.LandedAt
	stored.LandingLocation = item.LandingLocation
	stored.UpdatedAt = s.now()
	s.assets[item.ID] = stored
	return nil
}

// MoveBeacon reassigns a beacon to another asset. Tests use it to simulate an
// ownership change between resolution and insertion.
func (s *Store) MoveBeacon(beaconID uuid.UUID, assetID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.beacons[beaconID]; ok {
		b.AssetID = assetID
		s.beacons[beaconID] = b
	}
}

func (s *Store) checkAssetLaunchSite(item *models.Asset) error {
	if item.LaunchSiteID == nil {
		return nil
	}
	site, ok := s.sites[*item.LaunchSiteID]
	if !ok {
		return models.ErrLaunchSiteNotFound
	}
	return item.CheckLaunchSiteMission(site.MissionID)
}

func (s *Store) CreateBeacon(ctx context.Context, item *models.Beacon) error {
	if item == nil {
		return nil
	}
	if _, err := models.ParseBackendKind(item.BackendClassPath); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.beacons[item.ID] = models.Beacon{
		ID:               item.ID,
		AssetID:          item.AssetID,
		Identifier:       item.Identifier,
		Description:      item.Description,
		Active:           item.Active,
		BackendClassPath: item.BackendClassPath,
		BackendConfig:    item.BackendConfig,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
	return nil
}

func (s *Store) GetBeacon(ctx context.Context, id uuid.UUID) (*models.Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.beacons[id]; !ok {
		return nil, nil
	}
	return s.loadBeacon(id), nil
}

func (s *Store) FindActiveBeacon(ctx context.Context, identifiers []string, classPaths []string) (*models.Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range identifiers {
		ident = strings.TrimSpace(ident)
		if ident == "" {
			continue
		}
		for id, b := range s.beacons {
			if b.Identifier == ident && b.Active && matchesClassPath(b.BackendClassPath, classPaths) {
				return s.loadBeacon(id), nil
			}
		}
	}
	return nil, nil
}

func (s *Store) ListActiveBeacons(ctx context.Context, classPaths []string) ([]models.Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Beacon
	for id, b := range s.beacons {
		if b.Active && matchesClassPath(b.BackendClassPath, classPaths) {
			items = append(items, *s.loadBeacon(id))
		}
	}
	sortBeacons(items)
	return items, nil
}

func (s *Store) ListActiveSiblingBeacons(ctx context.Context, missionID uuid.UUID, excludeID uuid.UUID) ([]models.Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Beacon
	for id, b := range s.beacons {
		if !b.Active || id == excludeID {
			continue
		}
		asset, ok := s.assets[b.AssetID]
		if !ok || asset.MissionID != missionID {
			continue
		}
		items = append(items, *s.loadBeacon(id))
	}
	sortBeacons(items)
	return items, nil
}

// loadBeacon returns a fresh beacon value with its asset attached, the way a
// preloaded row would come back from the database.
func (s *Store) loadBeacon(id uuid.UUID) *models.Beacon {
	stored := s.beacons[id]
	item := models.Beacon{
		ID:               stored.ID,
		AssetID:          stored.AssetID,
		Identifier:       stored.Identifier,
		Description:      stored.Description,
		Active:           stored.Active,
		BackendClassPath: stored.BackendClassPath,
		BackendConfig:    stored.BackendConfig,
		CreatedAt:        stored.CreatedAt,
		UpdatedAt:        stored.UpdatedAt,
	}
	if asset, ok := s.assets[stored.AssetID]; ok {
		item.Asset = &asset
	}
	return &item
}

func matchesClassPath(path string, classPaths []string) bool {
	if len(classPaths) == 0 {
		return true
	}
	for _, p := range classPaths {
		if p == path {
			return true
		}
	}
	return false
}

func sortBeacons(items []models.Beacon) {
	sort.Slice(items, func(i, j int) bool { return items[i].Identifier < items[j].Identifier })
}

// --- pings ------------------------------------------------------------------

func (s *Store) CreatePing(ctx context.Context, item *models.Ping) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPing(item)
}

func (s *Store) CreatePingIfAbsent(ctx context.Context, item *models.Ping) (bool, error) {
	if item == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pings {
		if p.BeaconID == item.BeaconID && p.ReportedAt.Equal(item.ReportedAt) {
			return false, nil
		}
	}
	if err := s.insertPing(item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) insertPing(item *models.Ping) error {
	b, ok := s.beacons[item.BeaconID]
	if !ok || b.AssetID != item.AssetID {
		return repository.ErrOwnershipChanged
	}
	asset, ok := s.assets[b.AssetID]
	if !ok || asset.MissionID != item.MissionID {
		return repository.ErrOwnershipChanged
	}
	s.nextPingID++
	item.ID = s.nextPingID
	item.CreatedAt = s.now()
	stored := *item
	stored.Mission, stored.Asset, stored.Beacon, stored.Prediction = nil, nil, nil, nil
	s.pings = append(s.pings, stored)
	return nil
}

func (s *Store) LatestPing(ctx context.Context, beaconID uuid.UUID) (*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, ok := s.latest(beaconID)
	if !ok {
		return nil, nil
	}
	return &latest, nil
}

func (s *Store) LatestPingsByBeacons(ctx context.Context, beaconIDs []uuid.UUID) (map[uuid.UUID]models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]models.Ping, len(beaconIDs))
	for _, id := range beaconIDs {
		if p, ok := s.latest(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) latest(beaconID uuid.UUID) (models.Ping, bool) {
	var best models.Ping
	found := false
	for _, p := range s.pings {
		if p.BeaconID != beaconID {
			continue
		}
		if !found || p.ReportedAt.After(best.ReportedAt) || (p.ReportedAt.Equal(best.ReportedAt) && p.ID > best.ID) {
			best = p
			found = true
		}
	}
	return best, found
}

// --- outbound messages ------------------------------------------------------

func (s *Store) EnqueueOutboundMessage(ctx context.Context, item *models.OutboundMessage) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOutboundID++
	item.ID = s.nextOutboundID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	stored := *item
	stored.Beacon = nil
	s.outbound = append(s.outbound, stored)
	return nil
}

func (s *Store) ListPendingOutboundMessages(ctx context.Context, beaconID uuid.UUID) ([]models.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.OutboundMessage
	for _, m := range s.outbound {
		if m.BeaconID == beaconID && m.SentAt == nil {
			items = append(items, m)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) MarkOutboundMessagesSent(ctx context.Context, ids []uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range s.outbound {
		if _, ok := want[s.outbound[i].ID]; ok && s.outbound[i].SentAt == nil {
			sentAt := at
			s.outbound[i].SentAt = &sentAt
		}
	}
	return nil
}

// --- predictions ------------------------------------------------------------

func (s *Store) CreatePrediction(ctx context.Context, item *models.Prediction, siteID *uuid.UUID) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = models.PredictionCreated
	}
	s.stamp(&item.CreatedAt, &item.UpdatedAt)
	s.predictions[item.ID] = *item
	if siteID != nil {
		s.history[*siteID] = append(s.history[*siteID], item.ID)
	}
	return nil
}

func (s *Store) GetPrediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.predictions[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpdatePredictionStatus(ctx context.Context, id uuid.UUID, status models.PredictionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.predictions[id]
	if !ok {
		return nil
	}
	item.Status = status
	item.UpdatedAt = s.now()
	s.predictions[id] = item
	return nil
}

func (s *Store) RecordPredictionFailure(ctx context.Context, id uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.predictions[id]
	if !ok {
		return nil
	}
	item.Attempts++
	msg := lastError
	item.LastError = &msg
	item.UpdatedAt = s.now()
	s.predictions[id] = item
	return nil
}

func (s *Store) ApplyPredictionResult(ctx context.Context, id uuid.UUID, result models.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.predictions[id]
	if !ok {
		return nil
	}
	burstAt, landAt := result.BurstingAt, result.LandingAt
	burstLoc, landLoc := result.BurstLocation, result.LandingLocation
	burstAlt, landAlt := result.BurstAltitude, result.LandingAltitude
	item.BurstingAt = &burstAt
	item.BurstLocation = &burstLoc
	item.BurstAltitude = &burstAlt
	item.LandingAt = &landAt
	item.LandingLocation = &landLoc
	item.LandingAltitude = &landAlt
	item.Payload = result.Payload
	item.Status = models.PredictionCompleted
	item.LastError = nil
	item.UpdatedAt = s.now()
	s.predictions[id] = item
	return nil
}

// --- poll state & settings --------------------------------------------------

func (s *Store) GetPollState(ctx context.Context, scope string) (*models.PollState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.pollStates[scope]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) SavePollState(ctx context.Context, state *models.PollState) error {
	if state == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollStates[state.Scope] = *state
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.settings[item.Key]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		s.nextSettingID++
		item.ID = s.nextSettingID
		item.CreatedAt = s.now()
	}
	item.UpdatedAt = s.now()
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
