package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/prediction"
	"github.com/GaretJax/bmcc/internal/queue"
	"github.com/GaretJax/bmcc/internal/repository"
)

const (
	DefaultProfile  = "standard_profile"
	DefaultPredType = "single"
)

type PredictionDefaults struct {
	Profile  string
	PredType string
}

func (d PredictionDefaults) params() map[string]any {
	profile, predType := d.Profile, d.PredType
	if profile == "" {
		profile = DefaultProfile
	}
	if predType == "" {
		predType = DefaultPredType
	}
	return map[string]any{
		prediction.KeyProfile:  profile,
		prediction.KeyPredType: predType,
	}
}

// RunPredictionPayload is the payload of a prediction.run job.
type RunPredictionPayload struct {
	PredictionID uuid.UUID  `json:"prediction_id"`
	LaunchSiteID *uuid.UUID `json:"launch_site_id,omitempty"`
}

// SweepResult counts what one sweep did. Created predictions that failed are
// Created but not Updated.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
}

// PredictionService creates predictions for launch sites and drives them to
// completion, either through the job queue (ad hoc) or inline (sweep).
type PredictionService struct {
	Repo     repository.Repository
	Runner   *prediction.Runner
	Queue    queue.Queue
	Logger   *zap.Logger
	Defaults PredictionDefaults
	Now      func() time.Time

	// SweepTimeout bounds one sweep job. Zero keeps the queue's job timeout.
	SweepTimeout time.Duration
}

// RequestForLaunchSite queues a prediction for the site. It returns (nil,
// nil) without creating anything when the mission's flight profile is
// incomplete.
func (s *PredictionService) RequestForLaunchSite(ctx context.Context, missionID, siteID uuid.UUID, overrides map[string]any) (*models.Prediction, error) {
	mission, err := s.Repo.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if mission == nil {
		return nil, ErrMissionNotFound
	}
	site, err := s.Repo.GetLaunchSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil || site.MissionID != mission.ID {
		return nil, models.ErrLaunchSiteNotFound
	}
	logger := s.logger().With(zap.String("mission_id", mission.ID.String()), zap.String("launch_site_id", site.ID.String()))
	if !mission.HasFlightProfile() {
		logger.Info("mission flight profile incomplete, prediction not requested")
		return nil, nil
	}

	params := prediction.Merge(prediction.MissionProfile(mission), site.Metadata, overrides).
		SetDefaults(s.Defaults.params())
	launchAt := s.now()
	if site.IntendedLaunchAt != nil {
		launchAt = site.IntendedLaunchAt.UTC()
	}
	p := newPrediction(site, launchAt, params)
	if err := s.Repo.CreatePrediction(ctx, p, &site.ID); err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}

	// Submitted before the job exists so a fast worker never sees the
	// status regress.
	if err := s.Repo.UpdatePredictionStatus(ctx, p.ID, models.PredictionSubmitted); err != nil {
		return nil, fmt.Errorf("mark prediction submitted: %w", err)
	}
	p.Status = models.PredictionSubmitted
	siteRef := site.ID
	if _, err := s.Queue.Submit(ctx, JobPredictionRun, RunPredictionPayload{PredictionID: p.ID, LaunchSiteID: &siteRef}); err != nil {
		s.fail(ctx, p, err)
		return p, fmt.Errorf("submit prediction job: %w", err)
	}
	logger.Info("prediction requested", zap.String("prediction_id", p.ID.String()))
	return p, nil
}

// Run is the prediction.run job handler. An error makes the queue retry the
// job; attempts and the last error are recorded on the prediction first.
func (s *PredictionService) Run(ctx context.Context, job queue.Job) error {
	var payload RunPredictionPayload
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(err)
	}
	p, err := s.Repo.GetPrediction(ctx, payload.PredictionID)
	if err != nil {
		return err
	}
	if p == nil {
		s.logger().Warn("prediction job for missing prediction dropped", zap.String("prediction_id", payload.PredictionID.String()))
		return nil
	}
	if p.Status == models.PredictionCompleted || p.Status == models.PredictionFailed {
		return nil
	}

	if err := s.Runner.Submit(ctx, p); err != nil {
		if recErr := s.Repo.RecordPredictionFailure(ctx, p.ID, err.Error()); recErr != nil {
			s.logger().Warn("failed to record prediction failure", zap.String("prediction_id", p.ID.String()), zap.Error(recErr))
		}
		return err
	}
	if payload.LaunchSiteID != nil {
		if err := s.Repo.SetLaunchSitePrediction(ctx, *payload.LaunchSiteID, p.ID); err != nil {
			return fmt.Errorf("link prediction to launch site: %w", err)
		}
	}
	return nil
}

// HandleExhausted marks the prediction of a job that will not run again as
// failed.
func (s *PredictionService) HandleExhausted(ctx context.Context, job queue.Job, cause error) {
	var payload RunPredictionPayload
	if err := job.Decode(&payload); err != nil {
		return
	}
	if err := s.Repo.UpdatePredictionStatus(ctx, payload.PredictionID, models.PredictionFailed); err != nil {
		s.logger().Error("failed to mark prediction failed",
			zap.String("prediction_id", payload.PredictionID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger().Warn("prediction failed",
		zap.String("prediction_id", payload.PredictionID.String()),
		zap.Int("attempts", job.Attempts),
		zap.Error(cause),
	)
}

// Sweep requests a prediction for every launch site with an intended launch
// time in the future, one site at a time. A failed prediction is marked
// failed and the sweep moves on.
func (s *PredictionService) Sweep(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	sites, err := s.Repo.ListUpcomingLaunchSites(ctx, s.now())
	if err != nil {
		return out, fmt.Errorf("list upcoming launch sites: %w", err)
	}
	out.Candidates = len(sites)
	missions := map[uuid.UUID]*models.Mission{}

	for i := range sites {
		if err := ctx.Err(); err != nil {
			s.logger().Warn("prediction sweep interrupted",
				zap.Int("candidates", out.Candidates),
				zap.Int("created", out.Created),
				zap.Int("updated", out.Updated),
				zap.Int("skipped", out.Skipped),
				zap.Error(err),
			)
			return out, err
		}
		site := &sites[i]
		logger := s.logger().With(zap.String("launch_site_id", site.ID.String()))

		mission, err := s.missionOf(ctx, site, missions)
		if err != nil {
			return out, err
		}
		params := prediction.Merge(site.Metadata).
			SetDefaults(prediction.MissionProfile(mission)).
			SetDefaults(s.Defaults.params())
		missing := params.Missing()
		if site.IntendedLaunchAt == nil {
			missing = append(missing, "intended_launch_at")
		}
		if len(missing) > 0 {
			logger.Info("launch site skipped, parameters missing", zap.Strings("missing", missing))
			out.Skipped++
			continue
		}

		p := newPrediction(site, site.IntendedLaunchAt.UTC(), params)
		if err := s.Repo.CreatePrediction(ctx, p, &site.ID); err != nil {
			return out, fmt.Errorf("create prediction: %w", err)
		}
		out.Created++
		if err := s.Repo.UpdatePredictionStatus(ctx, p.ID, models.PredictionSubmitted); err != nil {
			return out, fmt.Errorf("mark prediction submitted: %w", err)
		}
		p.Status = models.PredictionSubmitted

		if err := s.Runner.Submit(ctx, p); err != nil {
			s.fail(ctx, p, err)
			logger.Warn("sweep prediction failed", zap.String("prediction_id", p.ID.String()), zap.Error(err))
			continue
		}
		if err := s.Repo.SetLaunchSitePrediction(ctx, site.ID, p.ID); err != nil {
			return out, fmt.Errorf("link prediction to launch site: %w", err)
		}
		out.Updated++
	}

	s.logger().Info("prediction sweep done",
		zap.Int("candidates", out.Candidates),
		zap.Int("created", out.Created),
		zap.Int("updated", out.Updated),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}

// SweepJob is the predictions.sweep job handler. A failed sweep is not
// retried: the sites it already handled would get a second prediction, and
// cron enqueues the next sweep anyway.
func (s *PredictionService) SweepJob(ctx context.Context, _ queue.Job) error {
	if _, err := s.Sweep(ctx); err != nil {
		return queue.Permanent(err)
	}
	return nil
}

func (s *PredictionService) missionOf(ctx context.Context, site *models.LaunchSite, cache map[uuid.UUID]*models.Mission) (*models.Mission, error) {
	if site.Mission != nil {
		return site.Mission, nil
	}
	if m, ok := cache[site.MissionID]; ok {
		return m, nil
	}
	m, err := s.Repo.GetMission(ctx, site.MissionID)
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	cache[site.MissionID] = m
	return m, nil
}

// fail records cause on p and marks it failed. The writes outlive ctx so a
// prediction cut short by a deadline does not stay submitted.
func (s *PredictionService) fail(ctx context.Context, p *models.Prediction, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.Repo.RecordPredictionFailure(ctx, p.ID, cause.Error()); err != nil {
		s.logger().Warn("failed to record prediction failure", zap.String("prediction_id", p.ID.String()), zap.Error(err))
	}
	if err := s.Repo.UpdatePredictionStatus(ctx, p.ID, models.PredictionFailed); err != nil {
		s.logger().Warn("failed to mark prediction failed", zap.String("prediction_id", p.ID.String()), zap.Error(err))
		return
	}
	p.Status = models.PredictionFailed
	msg := cause.Error()
	p.LastError = &msg
	p.Attempts++
}

func newPrediction(site *models.LaunchSite, launchAt time.Time, params prediction.Parameters) *models.Prediction {
	return &models.Prediction{
		Status:               models.PredictionCreated,
		LaunchAt:             launchAt,
		LaunchLocation:       site.Location,
		LaunchAltitude:       site.Altitude,
		AdditionalParameters: datatypes.JSONMap(params),
	}
}

// IsNotFound reports whether err is one of the service's lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMissionNotFound) ||
		errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrBeaconNotFound) ||
		errors.Is(err, models.ErrLaunchSiteNotFound)
}

func (s *PredictionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *PredictionService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
