package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/client/spot"
	"github.com/GaretJax/bmcc/internal/metrics"
	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
	"github.com/GaretJax/bmcc/internal/tracking"
)

// SpotFeed is the SPOT public feed transport.
type SpotFeed interface {
	FeedID() string
	FetchMessages(ctx context.Context) ([]spot.Message, error)
}

// IngestService routes device reports to the beacon's backend.
type IngestService struct {
	Repo   repository.Repository
	Spot   SpotFeed
	Deps   tracking.Deps
	Logger *zap.Logger
	Now    func() time.Time
}

// SpotPollResult summarizes one poll of the SPOT feed.
type SpotPollResult struct {
	Messages int `json:"messages"`
	Beacons  int `json:"beacons"`
	tracking.SpotStats
}

func (s *IngestService) deps() tracking.Deps {
	d := s.Deps
	if d.Repo == nil {
		d.Repo = s.Repo
	}
	if d.Logger == nil {
		d.Logger = s.logger()
	}
	if d.Now == nil {
		d.Now = s.now
	}
	return d
}

// HandleOwnTracks processes one webhook report. The beacon is looked up by
// the payload topic, or by the X-Limit-U/X-Limit-D header pair when the
// payload carries none. Reports that are not locations, or that come from an
// unknown, inactive or non-OwnTracks beacon, are acknowledged with an empty
// result.
func (s *IngestService) HandleOwnTracks(ctx context.Context, raw json.RawMessage, user, device string) (tracking.Result, error) {
	kind := string(tracking.KindOwnTracks)
	msg, err := tracking.ParseOwnTracks(raw)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, "invalid").Inc()
		return tracking.Result{}, err
	}
	if !msg.IsLocation() {
		s.logger().Debug("ignoring owntracks message", zap.String("type", msg.Type))
		metrics.PingsIngested.WithLabelValues(kind, "ignored").Inc()
		return tracking.Result{}, nil
	}

	identifiers := tracking.TopicIdentifiers(msg.Topic)
	if len(identifiers) == 0 {
		user, device = strings.TrimSpace(user), strings.TrimSpace(device)
		if user != "" && device != "" {
			identifiers = tracking.TopicIdentifiers("owntracks/" + user + "/" + device)
		}
	}
	if len(identifiers) == 0 {
		s.logger().Info("owntracks report without topic", zap.String("tid", msg.Tid))
		metrics.PingsIngested.WithLabelValues(kind, "unknown_beacon").Inc()
		return tracking.Result{}, nil
	}

	beacon, err := s.Repo.FindActiveBeacon(ctx, identifiers, tracking.KindOwnTracks.ClassPaths())
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, "storage").Inc()
		return tracking.Result{}, fmt.Errorf("find beacon: %w", err)
	}
	if beacon == nil {
		s.logger().Info("owntracks report for unknown beacon", zap.Strings("identifiers", identifiers))
		metrics.PingsIngested.WithLabelValues(kind, "unknown_beacon").Inc()
		return tracking.Result{}, nil
	}
	backend := tracking.Lookup(s.deps(), beacon)
	if backend == nil {
		metrics.PingsIngested.WithLabelValues(kind, "no_backend").Inc()
		return tracking.Result{}, nil
	}

	res, err := backend.HandlePing(ctx, raw)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, errorReason(err)).Inc()
		return tracking.Result{}, err
	}
	if res.Ping != nil {
		metrics.PingsIngested.WithLabelValues(kind, "created").Inc()
		s.logger().Debug("owntracks ping stored",
			zap.String("beacon_id", beacon.ID.String()),
			zap.Uint64("ping_id", res.Ping.ID),
			zap.Int("outbound", len(res.Outbound)),
		)
	}
	return res, nil
}

// ConfirmDelivery marks queued messages as sent. Call it only once the
// response carrying them was written.
func (s *IngestService) ConfirmDelivery(ctx context.Context, queued []models.OutboundMessage) error {
	if len(queued) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(queued))
	for _, m := range queued {
		ids = append(ids, m.ID)
	}
	if err := s.Repo.MarkOutboundMessagesSent(ctx, ids, s.now()); err != nil {
		return fmt.Errorf("mark outbound messages sent: %w", err)
	}
	return nil
}

// HandleDirectPing ingests a report pushed to the beacon's own endpoint.
func (s *IngestService) HandleDirectPing(ctx context.Context, beaconID uuid.UUID, raw json.RawMessage) (*models.Ping, error) {
	kind := string(tracking.KindAPI)
	beacon, err := s.Repo.GetBeacon(ctx, beaconID)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, "storage").Inc()
		return nil, fmt.Errorf("get beacon: %w", err)
	}
	if beacon == nil || !beacon.Active {
		metrics.IngestErrors.WithLabelValues(kind, "unknown_beacon").Inc()
		return nil, ErrBeaconNotFound
	}
	backend, err := tracking.Resolve(s.deps(), beacon)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, "backend").Inc()
		return nil, err
	}
	if backend == nil || backend.Kind() != tracking.KindAPI {
		metrics.IngestErrors.WithLabelValues(kind, "backend").Inc()
		return nil, ErrBackendMismatch
	}
	res, err := backend.HandlePing(ctx, raw)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(kind, errorReason(err)).Inc()
		return nil, err
	}
	metrics.PingsIngested.WithLabelValues(kind, "created").Inc()
	return res.Ping, nil
}

func spotScope(feedID string) string {
	return "spot:" + feedID
}

// PollSpot fetches the feed once and hands the messages to every active SPOT
// beacon. A failure on one beacon does not stop the others; the joined
// errors are returned after the poll state is saved.
func (s *IngestService) PollSpot(ctx context.Context) (SpotPollResult, error) {
	var out SpotPollResult
	if s == nil || s.Repo == nil || s.Spot == nil {
		return out, nil
	}
	logger := s.logger().With(zap.String("feed_id", s.Spot.FeedID()))
	start := time.Now()
	defer func() {
		metrics.SpotPollDuration.Observe(time.Since(start).Seconds())
	}()

	attemptAt := s.now()
	state := &models.PollState{Scope: spotScope(s.Spot.FeedID()), LastAttemptAt: &attemptAt}
	if prev, err := s.Repo.GetPollState(ctx, state.Scope); err == nil && prev != nil {
		state.LastSuccessAt = prev.LastSuccessAt
	}

	messages, err := s.Spot.FetchMessages(ctx)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(string(tracking.KindSpot), "upstream").Inc()
		s.savePollState(ctx, state, out, err)
		return out, fmt.Errorf("fetch spot feed: %w", err)
	}
	out.Messages = len(messages)

	beacons, err := s.Repo.ListActiveBeacons(ctx, tracking.KindSpot.ClassPaths())
	if err != nil {
		s.savePollState(ctx, state, out, err)
		return out, fmt.Errorf("list spot beacons: %w", err)
	}

	var errs []error
	deps := s.deps()
	for i := range beacons {
		beacon := &beacons[i]
		sb, ok := tracking.Lookup(deps, beacon).(*tracking.SpotBackend)
		if !ok {
			continue
		}
		out.Beacons++
		stats, err := sb.ProcessMessages(ctx, messages)
		out.Add(stats)
		if err != nil {
			metrics.IngestErrors.WithLabelValues(string(tracking.KindSpot), errorReason(err)).Inc()
			logger.Warn("spot beacon ingest failed", zap.String("beacon_id", beacon.ID.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("beacon %s: %w", beacon.ID, err))
		}
	}
	metrics.PingsIngested.WithLabelValues(string(tracking.KindSpot), "created").Add(float64(out.Created))
	metrics.PingsIngested.WithLabelValues(string(tracking.KindSpot), "duplicate").Add(float64(out.Duplicates))

	joined := errors.Join(errs...)
	s.savePollState(ctx, state, out, joined)
	logger.Info("spot poll done",
		zap.Int("messages", out.Messages),
		zap.Int("beacons", out.Beacons),
		zap.Int("created", out.Created),
		zap.Int("duplicates", out.Duplicates),
		zap.Int("skipped", out.Skipped),
	)
	return out, joined
}

func (s *IngestService) savePollState(ctx context.Context, state *models.PollState, result SpotPollResult, pollErr error) {
	if pollErr != nil {
		msg := pollErr.Error()
		state.LastError = &msg
	} else {
		at := s.now()
		state.LastSuccessAt = &at
	}
	raw, _ := json.Marshal(result)
	state.StatsJSON = datatypes.JSON(raw)
	if err := s.Repo.SavePollState(ctx, state); err != nil {
		s.logger().Warn("failed to save poll state", zap.String("scope", state.Scope), zap.Error(err))
	}
}

func errorReason(err error) string {
	var resErr *tracking.ResolutionError
	switch {
	case errors.Is(err, tracking.ErrInvalidPayload):
		return "invalid"
	case errors.Is(err, repository.ErrOwnershipChanged), errors.Is(err, tracking.ErrNoOwner):
		return "ownership"
	case errors.As(err, &resErr):
		return "backend"
	default:
		return "storage"
	}
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *IngestService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
