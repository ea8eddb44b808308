package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseBackendKind(t *testing.T) {
	cases := map[string]BackendKind{
		"":          "",
		"owntracks": BackendOwnTracks,
		"spot":      BackendSpot,
		"bmcc_api":  BackendAPI,
		"bmcc.tracking.backends.owntracks.OwnTracks": BackendOwnTracks,
		"bmcc.tracking.backends.spot.SpotBackend":    BackendSpot,
		"bmcc.tracking.backends.bmcc_api.ApiBackend": BackendAPI,
	}
	for path, want := range cases {
		got, err := ParseBackendKind(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := ParseBackendKind("bmcc.tracking.backends.nope.Nope")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestBackendKindClassPaths(t *testing.T) {
	paths := BackendSpot.ClassPaths()
	assert.ElementsMatch(t, []string{"spot", "bmcc.tracking.backends.spot.SpotBackend"}, paths)
}

func TestCachedBackendMemoizes(t *testing.T) {
	b := &Beacon{BackendClassPath: "owntracks", BackendConfig: datatypes.JSON(`{"show_peers":true}`)}
	calls := 0
	build := func(*Beacon) (any, error) {
		calls++
		return calls, nil
	}

	v1, err := b.CachedBackend(build)
	require.NoError(t, err)
	v2, err := b.CachedBackend(build)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, v1, v2)
}

func TestCachedBackendInvalidation(t *testing.T) {
	calls := 0
	build := func(*Beacon) (any, error) {
		calls++
		return calls, nil
	}

	b := &Beacon{BackendClassPath: "owntracks"}
	_, _ = b.CachedBackend(build)

	b.SetBackendConfig(datatypes.JSON(`{"show_peers":false}`))
	_, _ = b.CachedBackend(build)
	assert.Equal(t, 2, calls)

	b.SetBackend("spot", datatypes.JSON(`{"device_id":"0-1"}`))
	_, _ = b.CachedBackend(build)
	assert.Equal(t, 3, calls)

	// Direct assignment is detected through the snapshot.
	b.BackendConfig = datatypes.JSON(`{"device_id":"0-2"}`)
	v, _ := b.CachedBackend(build)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, v)

	b.BackendClassPath = "bmcc_api"
	_, _ = b.CachedBackend(build)
	assert.Equal(t, 5, calls)
}

func TestBackendErrorMemoized(t *testing.T) {
	boom := errors.New("boom")
	b := &Beacon{BackendClassPath: "spot"}
	assert.NoError(t, b.BackendError())

	_, err := b.CachedBackend(func(*Beacon) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, b.BackendError(), boom)

	b.SetBackendConfig(datatypes.JSON(`{"device_id":"x"}`))
	assert.NoError(t, b.BackendError())
}

func TestAssetCheckLaunchSiteMission(t *testing.T) {
	missionID := uuid.New()
	siteID := uuid.New()

	a := &Asset{MissionID: missionID}
	assert.NoError(t, a.CheckLaunchSiteMission(uuid.New()))

	a.LaunchSiteID = &siteID
	assert.NoError(t, a.CheckLaunchSiteMission(missionID))
	assert.ErrorIs(t, a.CheckLaunchSiteMission(uuid.New()), ErrLaunchSiteMission)
}

func TestMissionHasFlightProfile(t *testing.T) {
	v := 5.0
	m := &Mission{AscentRate: &v, BurstAltitude: &v}
	assert.False(t, m.HasFlightProfile())
	m.DescentRate = &v
	assert.True(t, m.HasFlightProfile())

	var nilMission *Mission
	assert.False(t, nilMission.HasFlightProfile())
}
