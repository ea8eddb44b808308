package prediction

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

// Predictor is the trajectory service transport.
type Predictor interface {
	Predict(ctx context.Context, query url.Values) ([]byte, error)
}

// Runner submits predictions and stores their results.
type Runner struct {
	Client Predictor
	Repo   repository.Repository
	Logger *zap.Logger
	// Observe, when set, receives the outcome and duration of each call.
	Observe func(outcome string, elapsed time.Duration)
}

// Submit calls the service for p and, only when the response parses
// completely, writes the derived waypoints and the raw payload together with
// the completed status.
func (r *Runner) Submit(ctx context.Context, p *models.Prediction) error {
	logger := r.logger().With(zap.String("prediction_id", p.ID.String()))
	logger.Info("submitting prediction",
		zap.Time("launch_at", p.LaunchAt),
		zap.Float64("launch_lat", p.LaunchLocation.Lat()),
		zap.Float64("launch_lon", p.LaunchLocation.Lon()),
	)

	start := time.Now()
	raw, err := r.Client.Predict(ctx, BuildQuery(p))
	if err != nil {
		r.observe("error", start)
		return fmt.Errorf("predict: %w", err)
	}
	result, err := ParseResult(raw)
	if err != nil {
		r.observe("malformed", start)
		return err
	}
	if err := r.Repo.ApplyPredictionResult(ctx, p.ID, result); err != nil {
		r.observe("error", start)
		return fmt.Errorf("store prediction result: %w", err)
	}
	r.observe("completed", start)

	p.BurstingAt = &result.BurstingAt
	p.BurstLocation = &result.BurstLocation
	p.BurstAltitude = &result.BurstAltitude
	p.LandingAt = &result.LandingAt
	p.LandingLocation = &result.LandingLocation
	p.LandingAltitude = &result.LandingAltitude
	p.Payload = result.Payload
	p.Status = models.PredictionCompleted
	p.LastError = nil

	logger.Info("prediction completed",
		zap.Time("bursting_at", result.BurstingAt),
		zap.Time("landing_at", result.LandingAt),
	)
	return nil
}

func (r *Runner) observe(outcome string, start time.Time) {
	if r.Observe != nil {
		r.Observe(outcome, time.Since(start))
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
