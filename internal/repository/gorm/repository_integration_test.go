//go:build integration

package gormrepository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/GaretJax/bmcc/internal/config"
	"github.com/GaretJax/bmcc/internal/db"
	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

func startPostgis(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgis/postgis:16-3.4-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bmcc",
				"POSTGRES_PASSWORD": "bmcc",
				"POSTGRES_DB":       "bmcc",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	conn, err := db.Open(config.DBConfig{
		DSN:          fmt.Sprintf("host=%s port=%s user=bmcc password=bmcc dbname=bmcc sslmode=disable", host, port.Port()),
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, db.AutoMigrate(conn))
	return conn
}

type fixture struct {
	store   *Store
	mission models.Mission
	asset   models.Asset
	beacon  models.Beacon
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := New(startPostgis(t).Gorm)
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
		Position:   models.NewPoint(7.25, 46.5),
	}
}

func TestStorePings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Concurrent pollers delivering the same message create exactly one row.
	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := f.store.CreatePingIfAbsent(ctx, f.ping(at))
			assert.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)
	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	latest, err := f.store.LatestPing(ctx, f.beacon.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 46.5, latest.Position.Lat(), 1e-9)
	assert.InDelta(t, 7.25, latest.Position.Lon(), 1e-9)
	assert.True(t, latest.ReportedAt.Equal(at))

	other := models.Asset{MissionID: f.mission.ID, Name: "car", AssetType: models.AssetVehicle}
	require.NoError(t, f.store.CreateAsset(ctx, &other))
	require.NoError(t, f.store.db.Model(&models.Beacon{}).
		Where("id = ?", f.beacon.ID).
		Update("asset_id", other.ID).Error)
	assert.ErrorIs(t, f.store.CreatePing(ctx, f.ping(time.Now())), repository.ErrOwnershipChanged)
}

func TestStoreLaunchSitesAndPredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	soon := now.Add(time.Hour)
	later := now.Add(2 * time.Hour)
	for _, site := range []models.LaunchSite{
		{MissionID: f.mission.ID, Name: "later", Location: models.NewPoint(7, 46), IntendedLaunchAt: &later},
		{MissionID: f.mission.ID, Name: "past", Location: models.NewPoint(7, 46), IntendedLaunchAt: &past},
		{MissionID: f.mission.ID, Name: "soon", Location: models.NewPoint(7, 46), IntendedLaunchAt: &soon},
	} {
		site := site
		require.NoError(t, f.store.CreateLaunchSite(ctx, &site))
	}

	upcoming, err := f.store.ListUpcomingLaunchSites(ctx, now)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "soon", upcoming[0].Name)
	assert.Equal(t, "later", upcoming[1].Name)
	require.NotNil(t, upcoming[0].Mission)

	site := upcoming[0]
	p := models.Prediction{LaunchAt: soon, LaunchLocation: site.Location}
	require.NoError(t, f.store.CreatePrediction(ctx, &p, &site.ID))
	ids, err := f.store.ListLaunchSitePredictionIDs(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID}, ids)

	require.NoError(t, f.store.RecordPredictionFailure(ctx, p.ID, "boom"))
	require.NoError(t, f.store.SetLaunchSitePrediction(ctx, site.ID, p.ID))
	got, err := f.store.GetLaunchSite(ctx, site.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PredictionID)
	assert.Equal(t, p.ID, *got.PredictionID)

	stored, err := f.store.GetPrediction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "boom", *stored.LastError)

	missing, err := f.store.GetPrediction(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
