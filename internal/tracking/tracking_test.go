package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/client/spot"
	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type world struct {
	store   *memory.Store
	deps    Deps
	mission models.Mission
	asset   models.Asset
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	m := models.Mission{Name: "HB-1"}
	require.NoError(t, store.CreateMission(ctx, &m))
	a := models.Asset{MissionID: m.ID, Name: "balloon", Callsign: "HB9ABC", AssetType: models.AssetBalloon}
	require.NoError(t, store.CreateAsset(ctx, &a))
	return &world{
		store:   store,
		deps:    Deps{Repo: store, Logger: zap.NewNop(), Now: func() time.Time { return fixedNow }},
		mission: m,
		asset:   a,
	}
}

func (w *world) beacon(t *testing.T, assetID models.Asset, ident, classPath, config string) *models.Beacon {
	t.Helper()
	b := models.Beacon{
		AssetID:          assetID.ID,
		Identifier:       ident,
		Active:           true,
		BackendClassPath: classPath,
		BackendConfig:    datatypes.JSON(config),
	}
	require.NoError(t, w.store.CreateBeacon(context.Background(), &b))
	loaded, err := w.store.GetBeacon(context.Background(), b.ID)
	require.NoError(t, err)
	return loaded
}

func TestResolveUnsetClassPath(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "none", "", "")
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)
	assert.Nil(t, backend)
}

func TestResolveKinds(t *testing.T) {
	w := newWorld(t)
	cases := []struct {
		path   string
		config string
		kind   Kind
	}{
		{"owntracks", `{"show_peers":true}`, KindOwnTracks},
		{"bmcc.tracking.backends.owntracks.OwnTracks", ``, KindOwnTracks},
		{"spot", `{"device_id":"0-1"}`, KindSpot},
		{"bmcc.tracking.backends.bmcc_api.ApiBackend", `{"ignored":1}`, KindAPI},
	}
	for _, tc := range cases {
		b := w.beacon(t, w.asset, tc.path, tc.path, tc.config)
		backend, err := Resolve(w.deps, b)
		require.NoError(t, err, tc.path)
		require.NotNil(t, backend, tc.path)
		assert.Equal(t, tc.kind, backend.Kind(), tc.path)
	}
}

func TestResolveIsMemoizedPerBeacon(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "phone", "owntracks", `{"show_peers":false}`)

	first, err := Resolve(w.deps, b)
	require.NoError(t, err)
	second, err := Resolve(w.deps, b)
	require.NoError(t, err)
	assert.Same(t, first, second)

	b.SetBackendConfig(datatypes.JSON(`{"show_peers":true}`))
	third, err := Resolve(w.deps, b)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.True(t, third.(*OwnTracksBackend).Config().ShowPeers)
}

func TestResolveFailureIsTypedAndMemoized(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "bad-spot", "spot", `{"device_id":""}`)

	_, err := Resolve(w.deps, b)
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "spot", resErr.ClassPath)
	assert.Error(t, b.BackendError())
	assert.Nil(t, Lookup(w.deps, b))

	b.BackendClassPath = "nope"
	_, err = Resolve(w.deps, b)
	assert.ErrorIs(t, err, models.ErrUnknownBackend)

	b.BackendClassPath = "spot"
	b.BackendConfig = datatypes.JSON(`not json`)
	_, err = Resolve(w.deps, b)
	require.True(t, errors.As(err, &resErr))
}

func TestNewPingRequiresOwnerAndValidCoordinates(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "api", "bmcc_api", "")
	owner, err := OwnerOf(b)
	require.NoError(t, err)
	assert.Equal(t, w.mission.ID, owner.MissionID)

	_, err = NewPing(b, Owner{}, PingInput{ReportedAt: fixedNow})
	assert.ErrorIs(t, err, ErrNoOwner)

	_, err = NewPing(b, owner, PingInput{ReportedAt: fixedNow, Latitude: 91})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewPing(b, owner, PingInput{Latitude: 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	alt := 512.6
	p, err := NewPing(b, owner, PingInput{ReportedAt: fixedNow, Latitude: 46, Longitude: 7, Altitude: &alt, Raw: json.RawMessage(`{"x":1}`)})
	require.NoError(t, err)
	assert.Equal(t, 513, *p.Altitude)
	assert.Equal(t, fixedNow, p.ReportedAt)
	assert.JSONEq(t, `{"x":1}`, string(p.Metadata))
}

func TestOwnTracksNonLocationIsNoop(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "phone", "owntracks", "")
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)

	res, err := backend.HandlePing(context.Background(), json.RawMessage(`{"_type":"transition","event":"enter"}`))
	require.NoError(t, err)
	assert.Nil(t, res.Ping)
	assert.Empty(t, res.Outbound)

	latest, err := w.store.LatestPing(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestOwnTracksInvalidLocation(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "phone", "owntracks", "")
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)

	_, err = backend.HandlePing(context.Background(), json.RawMessage(`{"_type":"location","lat":46}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = backend.HandlePing(context.Background(), json.RawMessage(`{`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOwnTracksPeersScenario(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	car := models.Asset{MissionID: w.mission.ID, Name: "chase car", Callsign: "CAR1", AssetType: models.AssetVehicle}
	require.NoError(t, w.store.CreateAsset(ctx, &car))

	b := w.beacon(t, w.asset, "owntracks/ops/phone", "owntracks", `{"show_peers":true}`)
	c := w.beacon(t, car, "car-tracker", "bmcc_api", "")
	// Active sibling that never reported: no card, no location.
	w.beacon(t, car, "silent", "bmcc_api", "")

	cBackend, err := Resolve(w.deps, c)
	require.NoError(t, err)
	_, err = cBackend.HandlePing(ctx, json.RawMessage(`{"latitude":46.5,"longitude":7.5}`))
	require.NoError(t, err)

	queued := models.OutboundMessage{BeaconID: b.ID, Message: datatypes.JSON(`{"_type":"cmd","action":"reportLocation"}`)}
	require.NoError(t, w.store.EnqueueOutboundMessage(ctx, &queued))

	bBackend, err := Resolve(w.deps, b)
	require.NoError(t, err)
	res, err := bBackend.HandlePing(ctx, json.RawMessage(`{"_type":"location","lat":46.9,"lon":7.4,"alt":540,"acc":5,"vel":0,"tst":1714564800,"tid":"ph"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Ping)
	assert.Equal(t, w.mission.ID, res.Ping.MissionID)
	assert.Equal(t, time.Unix(1714564800, 0).UTC(), res.Ping.ReportedAt)

	require.Len(t, res.Queued, 1)
	require.Len(t, res.Outbound, 4)
	assert.JSONEq(t, `{"_type":"cmd","action":"reportLocation"}`, string(res.Outbound[0]))
	assert.JSONEq(t, `{"_type":"cmd","action":"clearWaypoints"}`, string(res.Outbound[1]))

	var card, loc map[string]any
	require.NoError(t, json.Unmarshal(res.Outbound[2], &card))
	require.NoError(t, json.Unmarshal(res.Outbound[3], &loc))
	assert.Equal(t, "card", card["_type"])
	assert.Equal(t, "CAR1", card["name"])
	assert.Equal(t, "location", loc["_type"])
	assert.Equal(t, 46.5, loc["lat"])
	assert.Equal(t, 7.5, loc["lon"])
	assert.Equal(t, float64(fixedNow.Unix()), loc["tst"])
	assert.Equal(t, card["topic"], loc["topic"])
}

func TestOwnTracksWithoutPeers(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "phone", "owntracks", `{"show_peers":false}`)
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)

	res, err := backend.HandlePing(context.Background(), json.RawMessage(`{"_type":"location","lat":1,"lon":2,"tst":1714564800}`))
	require.NoError(t, err)
	require.NotNil(t, res.Ping)
	assert.NotNil(t, res.Outbound)
	assert.Empty(t, res.Outbound)
}

func TestTopicIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"owntracks/alice/phone", "phone"}, TopicIdentifiers("owntracks/alice/phone"))
	assert.Equal(t, []string{"phone"}, TopicIdentifiers("phone"))
	assert.Nil(t, TopicIdentifiers("  "))
}

func TestAPIBackendStampsReceiveTime(t *testing.T) {
	w := newWorld(t)
	b := w.beacon(t, w.asset, "logger-1", "bmcc_api", "")
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)

	res, err := backend.HandlePing(context.Background(), json.RawMessage(`{"latitude":0,"longitude":0}`))
	require.NoError(t, err)
	require.NotNil(t, res.Ping)
	assert.Equal(t, fixedNow, res.Ping.ReportedAt)
	assert.Nil(t, res.Ping.Altitude)

	for _, body := range []string{`{"longitude":1}`, `{"latitude":"x","longitude":1}`, `{"latitude":95,"longitude":1}`, `[]`} {
		_, err := backend.HandlePing(context.Background(), json.RawMessage(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
	}
}

func TestSpotProcessMessagesDedups(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.beacon(t, w.asset, "spot-1", "spot", `{"device_id":"0-123"}`)
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)
	sb := backend.(*SpotBackend)

	msgs := []spot.Message{
		{ID: 3, MessengerID: "0-123", MessageType: "TRACK", Latitude: 46.1, Longitude: 7.1, DateTime: "2024-05-01T12:10:00+0000", Raw: json.RawMessage(`{"id":3}`)},
		{ID: 2, MessengerID: "0-123", MessageType: "OK", Latitude: 46.0, Longitude: 7.0, DateTime: "2024-05-01T12:05:00+0000"},
		{ID: 1, MessengerID: "0-999", MessageType: "TRACK", Latitude: 40, Longitude: 5, DateTime: "2024-05-01T12:00:00+0000"},
	}

	stats, err := sb.ProcessMessages(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, SpotStats{Matched: 2, Created: 1, Skipped: 1}, stats)

	stats, err = sb.ProcessMessages(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, SpotStats{Matched: 2, Duplicates: 1, Skipped: 1}, stats)

	latest, err := w.store.LatestPing(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.JSONEq(t, `{"id":3}`, string(latest.Metadata))
	assert.Equal(t, w.asset.ID, latest.AssetID)
}

func TestSpotProcessMessagesSkipsMalformed(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	b := w.beacon(t, w.asset, "spot-1", "spot", `{"device_id":"0-123"}`)
	backend, err := Resolve(w.deps, b)
	require.NoError(t, err)
	sb := backend.(*SpotBackend)

	msgs := []spot.Message{
		{ID: 4, MessengerID: "0-123", MessageType: "TRACK", Latitude: 46.2, Longitude: 7.2, DateTime: "garbage"},
		{ID: 3, MessengerID: "0-123", MessageType: "TRACK", Latitude: 95, Longitude: 7.2, DateTime: "2024-05-01T12:15:00+0000"},
		{ID: 2, MessengerID: "0-123", MessageType: "TRACK", Latitude: 46.1, Longitude: 7.1, DateTime: "2024-05-01T12:10:00+0000"},
		{ID: 1, MessengerID: "0-123", MessageType: "TRACK", Latitude: 46.0, Longitude: 7.0, DateTime: "2024-05-01T12:05:00+0000"},
	}

	stats, err := sb.ProcessMessages(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, SpotStats{Matched: 4, Created: 2, Skipped: 2}, stats)

	latest, err := w.store.LatestPing(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), latest.ReportedAt.UTC())
}
