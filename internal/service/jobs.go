package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/queue"
)

const (
	JobPredictionRun   = "prediction.run"
	JobPredictionSweep = "predictions.sweep"
	JobSpotPoll        = "tracking.spot_poll"
)

// RegisterJobs binds the job types to their handlers.
func RegisterJobs(d *queue.Dispatcher, ingest *IngestService, predictions *PredictionService) {
	if predictions != nil {
		d.Handle(JobPredictionRun, predictions.Run)
		d.OnExhausted(JobPredictionRun, predictions.HandleExhausted)
		d.Handle(JobPredictionSweep, predictions.SweepJob)
		if predictions.SweepTimeout > 0 {
			d.SetTimeout(JobPredictionSweep, predictions.SweepTimeout)
		}
	}
	if ingest != nil {
		d.Handle(JobSpotPoll, func(ctx context.Context, _ queue.Job) error {
			_, err := ingest.PollSpot(ctx)
			return err
		})
	}
}

// Trigger enqueues periodic jobs while their feature switch is on.
type Trigger struct {
	Queue  queue.Queue
	Flags  *SystemSettingsService
	Logger *zap.Logger
}

// Enqueue returns a cron job that submits jobType unless feature is
// switched off.
func (t *Trigger) Enqueue(jobType, feature string) func(context.Context) error {
	return func(ctx context.Context) error {
		if t.Flags != nil && !t.Flags.IsEnabled(ctx, feature, true) {
			if t.Logger != nil {
				t.Logger.Debug("job switched off", zap.String("type", jobType), zap.String("feature", feature))
			}
			return nil
		}
		_, err := t.Queue.Submit(ctx, jobType, struct{}{})
		return err
	}
}
