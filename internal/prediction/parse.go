package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/models"
)

var ErrMalformedResult = errors.New("malformed prediction result")

type response struct {
	Prediction []leg `json:"prediction"`
}

type leg struct {
	Stage      string  `json:"stage"`
	Trajectory []point `json:"trajectory"`
}

type point struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Datetime  *string  `json:"datetime"`
}

// ParseResult extracts the burst waypoint (last ascent point) and the landing
// waypoint (last descent point) from a two-leg response. Values are copied
// as returned; any missing piece fails the whole parse.
func ParseResult(raw []byte) (models.PredictionResult, error) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.PredictionResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if len(resp.Prediction) != 2 {
		return models.PredictionResult{}, fmt.Errorf("%w: expected 2 legs, got %d", ErrMalformedResult, len(resp.Prediction))
	}
	burst, err := lastPoint(resp.Prediction[0], "ascent")
	if err != nil {
		return models.PredictionResult{}, err
	}
	land, err := lastPoint(resp.Prediction[1], "descent")
	if err != nil {
		return models.PredictionResult{}, err
	}
	return models.PredictionResult{
		BurstingAt:      burst.at,
		BurstLocation:   models.NewPoint(*burst.Longitude, *burst.Latitude),
		BurstAltitude:   *burst.Altitude,
		LandingAt:       land.at,
		LandingLocation: models.NewPoint(*land.Longitude, *land.Latitude),
		LandingAltitude: *land.Altitude,
		Payload:         datatypes.JSON(append([]byte(nil), raw...)),
	}, nil
}

type waypoint struct {
	point
	at time.Time
}

func lastPoint(l leg, name string) (waypoint, error) {
	if len(l.Trajectory) == 0 {
		return waypoint{}, fmt.Errorf("%w: empty %s trajectory", ErrMalformedResult, name)
	}
	p := l.Trajectory[len(l.Trajectory)-1]
	if p.Latitude == nil || p.Longitude == nil || p.Altitude == nil || p.Datetime == nil {
		return waypoint{}, fmt.Errorf("%w: incomplete %s point", ErrMalformedResult, name)
	}
	at, err := time.Parse(time.RFC3339Nano, *p.Datetime)
	if err != nil {
		return waypoint{}, fmt.Errorf("%w: %s datetime: %v", ErrMalformedResult, name, err)
	}
	return waypoint{point: p, at: at}, nil
}
