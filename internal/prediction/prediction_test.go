package prediction

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository/memory"
)

const twoLegs = `{
  "metadata": {"complete_datetime": "2024-05-01T10:00:01Z"},
  "prediction": [
    {"stage": "ascent", "trajectory": [
      {"altitude": 540.0, "datetime": "2024-05-01T12:00:00Z", "latitude": 46.95, "longitude": 7.44},
      {"altitude": 30000.0, "datetime": "2024-05-01T13:40:00.5Z", "latitude": 47.1, "longitude": 8.02}
    ]},
    {"stage": "descent", "trajectory": [
      {"altitude": 30000.0, "datetime": "2024-05-01T13:40:00.5Z", "latitude": 47.1, "longitude": 8.02},
      {"altitude": 612.3, "datetime": "2024-05-01T14:05:12Z", "latitude": 47.2, "longitude": 358.5}
    ]}
  ]
}`

func TestNormalizeLongitude(t *testing.T) {
	assert.Equal(t, 350.0, NormalizeLongitude(-10))
	assert.Equal(t, 10.0, NormalizeLongitude(10))
	assert.Equal(t, 0.0, NormalizeLongitude(0))
	assert.Equal(t, 180.0, NormalizeLongitude(-180))
}

func TestBuildQuery(t *testing.T) {
	p := &models.Prediction{
		LaunchAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		LaunchLocation: models.NewPoint(-10, 46.5),
		AdditionalParameters: datatypes.JSONMap{
			"ascent_rate":    5.0,
			"burst_altitude": 30000.0,
			"profile":        "standard_profile",
		},
	}
	q := BuildQuery(p)
	assert.Equal(t, "46.5", q.Get("launch_latitude"))
	assert.Equal(t, "350", q.Get("launch_longitude"))
	assert.Equal(t, "0", q.Get("launch_altitude"))
	assert.Equal(t, "2024-05-01T12:00:00Z", q.Get("launch_datetime"))
	assert.Equal(t, "5", q.Get("ascent_rate"))
	assert.Equal(t, "30000", q.Get("burst_altitude"))
	assert.Equal(t, "standard_profile", q.Get("profile"))

	p.LaunchLocation = models.NewPoint(10, 46.5)
	alt := 540.0
	p.LaunchAltitude = &alt
	p.AdditionalParameters["launch_altitude"] = 1000.0
	q = BuildQuery(p)
	assert.Equal(t, "10", q.Get("launch_longitude"))
	assert.Equal(t, "1000", q.Get("launch_altitude"), "additional parameters override computed fields")
}

func TestParametersMergeAndDefaults(t *testing.T) {
	five, burst, down := 5.0, 30000.0, -5.0
	m := &models.Mission{AscentRate: &five, BurstAltitude: &burst, DescentRate: &down}

	p := Merge(map[string]any{"ascent_rate": 4.0}).SetDefaults(MissionProfile(m))
	assert.Equal(t, 4.0, p[KeyAscentRate])
	assert.Equal(t, 30000.0, p[KeyBurstAltitude])
	assert.Empty(t, p.Missing())

	p = Merge(map[string]any{"ascent_rate": 4.0}, MissionProfile(m))
	assert.Equal(t, 5.0, p[KeyAscentRate])

	assert.Equal(t, []string{KeyAscentRate, KeyBurstAltitude, KeyDescentRate}, Parameters{}.Missing())
	assert.Equal(t, []string{KeyDescentRate}, Parameters{KeyAscentRate: 1, KeyBurstAltitude: 2, KeyDescentRate: nil}.Missing())
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult([]byte(twoLegs))
	require.NoError(t, err)

	assert.True(t, res.BurstingAt.Equal(time.Date(2024, 5, 1, 13, 40, 0, 500_000_000, time.UTC)))
	assert.Equal(t, 8.02, res.BurstLocation.Lon())
	assert.Equal(t, 47.1, res.BurstLocation.Lat())
	assert.Equal(t, 30000.0, res.BurstAltitude)

	assert.True(t, res.LandingAt.Equal(time.Date(2024, 5, 1, 14, 5, 12, 0, time.UTC)))
	assert.Equal(t, 358.5, res.LandingLocation.Lon())
	assert.Equal(t, 47.2, res.LandingLocation.Lat())
	assert.Equal(t, 612.3, res.LandingAltitude)
	assert.JSONEq(t, twoLegs, string(res.Payload))
}

func TestParseResultRejectsPartial(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"one leg":       `{"prediction":[{"trajectory":[{"altitude":1,"datetime":"2024-05-01T12:00:00Z","latitude":1,"longitude":1}]}]}`,
		"empty descent": `{"prediction":[{"trajectory":[{"altitude":1,"datetime":"2024-05-01T12:00:00Z","latitude":1,"longitude":1}]},{"trajectory":[]}]}`,
		"no landing altitude": `{"prediction":[
			{"trajectory":[{"altitude":1,"datetime":"2024-05-01T12:00:00Z","latitude":1,"longitude":1}]},
			{"trajectory":[{"datetime":"2024-05-01T12:30:00Z","latitude":1,"longitude":1}]}]}`,
		"bad datetime": `{"prediction":[
			{"trajectory":[{"altitude":1,"datetime":"yesterday","latitude":1,"longitude":1}]},
			{"trajectory":[{"altitude":1,"datetime":"2024-05-01T12:30:00Z","latitude":1,"longitude":1}]}]}`,
	}
	for name, body := range cases {
		_, err := ParseResult([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedResult, name)
	}
}

type fakePredictor struct {
	body  string
	err   error
	query url.Values
}

func (f *fakePredictor) Predict(ctx context.Context, query url.Values) ([]byte, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func newPrediction(t *testing.T, store *memory.Store) *models.Prediction {
	t.Helper()
	p := &models.Prediction{
		LaunchAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		LaunchLocation: models.NewPoint(7.44, 46.95),
		Status:         models.PredictionSubmitted,
	}
	require.NoError(t, store.CreatePrediction(context.Background(), p, nil))
	return p
}

func TestRunnerSubmitCompletes(t *testing.T) {
	store := memory.New()
	p := newPrediction(t, store)
	var outcomes []string
	r := &Runner{
		Client:  &fakePredictor{body: twoLegs},
		Repo:    store,
		Observe: func(outcome string, _ time.Duration) { outcomes = append(outcomes, outcome) },
	}

	require.NoError(t, r.Submit(context.Background(), p))
	assert.Equal(t, models.PredictionCompleted, p.Status)
	assert.Equal(t, []string{"completed"}, outcomes)

	stored, err := store.GetPrediction(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PredictionCompleted, stored.Status)
	require.NotNil(t, stored.LandingAltitude)
	assert.Equal(t, 612.3, *stored.LandingAltitude)
}

func TestRunnerSubmitWritesNothingOnFailure(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for name, client := range map[string]*fakePredictor{
		"transport": {err: errors.New("connection refused")},
		"partial":   {body: `{"prediction":[{"trajectory":[]}]}`},
	} {
		p := newPrediction(t, store)
		r := &Runner{Client: client, Repo: store}
		assert.Error(t, r.Submit(ctx, p), name)

		stored, err := store.GetPrediction(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PredictionSubmitted, stored.Status, name)
		assert.Nil(t, stored.BurstingAt, name)
		assert.Nil(t, stored.LandingAt, name)
		assert.Nil(t, stored.Payload, name)
	}
}
