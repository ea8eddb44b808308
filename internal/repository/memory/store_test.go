package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

type fixture struct {
	store   *Store
	mission models.Mission
	asset   models.Asset
	beacon  models.Beacon
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := New()
	m := models.Mission{Name: "HB-1"}
	require.NoError(t, s.CreateMission(ctx, &m))
	a := models.Asset{MissionID: m.ID, Name: "balloon", AssetType: models.AssetBalloon}
	require.NoError(t, s.CreateAsset(ctx, &a))
	b := models.Beacon{AssetID: a.ID, Identifier: "spot-1", Active: true, BackendClassPath: "spot"}
	require.NoError(t, s.CreateBeacon(ctx, &b))
	return fixture{store: s, mission: m, asset: a, beacon: b}
}

func (f fixture) ping(at time.Time) *models.Ping {
	return &models.Ping{
		MissionID:  f.mission.ID,
		AssetID:    f.asset.ID,
		BeaconID:   f.beacon.ID,
		ReportedAt: at,
		Position:   models.NewPoint(7, 46),
	}
}

func TestCreatePingIfAbsentDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	created, err := f.store.CreatePingIfAbsent(ctx, f.ping(at))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.store.CreatePingIfAbsent(ctx, f.ping(at))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = f.store.CreatePingIfAbsent(ctx, f.ping(at.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreatePingRejectsStaleOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := models.Asset{MissionID: f.mission.ID, Name: "car", AssetType: models.AssetVehicle}
	require.NoError(t, f.store.CreateAsset(ctx, &other))

	p := f.ping(time.Now())
	f.store.MoveBeacon(f.beacon.ID, other.ID)
	assert.ErrorIs(t, f.store.CreatePing(ctx, p), repository.ErrOwnershipChanged)

	p.AssetID = other.ID
	require.NoError(t, f.store.CreatePing(ctx, p))
	assert.NotZero(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestLatestPingTieBreaksOnID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := f.ping(at)
	require.NoError(t, f.store.CreatePing(ctx, first))
	second := f.ping(at)
	require.NoError(t, f.store.CreatePing(ctx, second))
	older := f.ping(at.Add(-time.Hour))
	require.NoError(t, f.store.CreatePing(ctx, older))

	latest, err := f.store.LatestPing(ctx, f.beacon.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	byBeacon, err := f.store.LatestPingsByBeacons(ctx, []uuid.UUID{f.beacon.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byBeacon, 1)
	assert.Equal(t, second.ID, byBeacon[f.beacon.ID].ID)
}

func TestSaveAssetFlightChecksLaunchSiteMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherMission := models.Mission{Name: "HB-2"}
	require.NoError(t, f.store.CreateMission(ctx, &otherMission))
	foreign := models.LaunchSite{MissionID: otherMission.ID, Name: "elsewhere", Location: models.NewPoint(8, 47)}
	require.NoError(t, f.store.CreateLaunchSite(ctx, &foreign))
	own := models.LaunchSite{MissionID: f.mission.ID, Name: "home", Location: models.NewPoint(7, 46)}
	require.NoError(t, f.store.CreateLaunchSite(ctx, &own))

	asset := f.asset
	asset.LaunchSiteID = &foreign.ID
	assert.ErrorIs(t, f.store.SaveAssetFlight(ctx, &asset), models.ErrLaunchSiteMission)

	asset.LaunchSiteID = &own.ID
	require.NoError(t, f.store.SaveAssetFlight(ctx, &asset))
	stored, err := f.store.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, own.ID, *stored.LaunchSiteID)
}

func TestCreateBeaconRejectsUnknownBackend(t *testing.T) {
	f := newFixture(t)
	err := f.store.CreateBeacon(context.Background(), &models.Beacon{
		AssetID:          f.asset.ID,
		Identifier:       "x",
		BackendClassPath: "bmcc.tracking.backends.nope.Nope",
	})
	assert.ErrorIs(t, err, models.ErrUnknownBackend)
}

func TestFindActiveBeaconPreferenceAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ot := models.Beacon{AssetID: f.asset.ID, Identifier: "owntracks/alice/phone", Active: true, BackendClassPath: "owntracks"}
	require.NoError(t, f.store.CreateBeacon(ctx, &ot))
	inactive := models.Beacon{AssetID: f.asset.ID, Identifier: "phone", Active: false, BackendClassPath: "owntracks"}
	require.NoError(t, f.store.CreateBeacon(ctx, &inactive))

	got, err := f.store.FindActiveBeacon(ctx, []string{"phone", "owntracks/alice/phone"}, models.BackendOwnTracks.ClassPaths())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ot.ID, got.ID)
	require.NotNil(t, got.Asset)
	assert.Equal(t, f.mission.ID, got.Asset.MissionID)

	got, err = f.store.FindActiveBeacon(ctx, []string{"spot-1"}, models.BackendOwnTracks.ClassPaths())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOutboundMessagesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := models.OutboundMessage{BeaconID: f.beacon.ID, Message: []byte(`{"_type":"cmd","action":"reportLocation"}`)}
	m2 := models.OutboundMessage{BeaconID: f.beacon.ID, Message: []byte(`{"_type":"cmd","action":"dump"}`)}
	require.NoError(t, f.store.EnqueueOutboundMessage(ctx, &m1))
	require.NoError(t, f.store.EnqueueOutboundMessage(ctx, &m2))

	pending, err := f.store.ListPendingOutboundMessages(ctx, f.beacon.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, m1.ID, pending[0].ID)

	require.NoError(t, f.store.MarkOutboundMessagesSent(ctx, []uint64{m1.ID}, time.Now()))
	pending, err = f.store.ListPendingOutboundMessages(ctx, f.beacon.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m2.ID, pending[0].ID)
}

func TestPredictionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	site := models.LaunchSite{MissionID: f.mission.ID, Name: "home", Location: models.NewPoint(7, 46)}
	require.NoError(t, f.store.CreateLaunchSite(ctx, &site))

	p := models.Prediction{LaunchAt: time.Now(), LaunchLocation: site.Location}
	require.NoError(t, f.store.CreatePrediction(ctx, &p, &site.ID))
	assert.Equal(t, models.PredictionCreated, p.Status)

	ids, err := f.store.ListLaunchSitePredictionIDs(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID}, ids)

	require.NoError(t, f.store.RecordPredictionFailure(ctx, p.ID, "boom"))
	require.NoError(t, f.store.RecordPredictionFailure(ctx, p.ID, "boom again"))
	got, err := f.store.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "boom again", *got.LastError)

	burst := time.Now().Add(time.Hour)
	require.NoError(t, f.store.ApplyPredictionResult(ctx, p.ID, models.PredictionResult{
		BurstingAt:      burst,
		BurstLocation:   models.NewPoint(7.5, 46.2),
		BurstAltitude:   30000,
		LandingAt:       burst.Add(30 * time.Minute),
		LandingLocation: models.NewPoint(7.9, 46.4),
		LandingAltitude: 500,
		Payload:         []byte(`{}`),
	}))
	got, err = f.store.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PredictionCompleted, got.Status)
	assert.Nil(t, got.LastError)
	assert.Equal(t, 30000.0, *got.BurstAltitude)
}
