package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/client/spot"
	"github.com/GaretJax/bmcc/internal/models"
)

// SpotConfig is the backend_config of a SPOT beacon.
type SpotConfig struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// SpotStats counts what one ProcessMessages call did.
type SpotStats struct {
	Matched    int `json:"matched"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

func (s *SpotStats) Add(o SpotStats) {
	s.Matched += o.Matched
	s.Created += o.Created
	s.Duplicates += o.Duplicates
	s.Skipped += o.Skipped
}

type SpotBackend struct {
	deps   Deps
	beacon *models.Beacon
	config SpotConfig
}

func newSpot(deps Deps, beacon *models.Beacon, raw json.RawMessage) (Backend, error) {
	b := &SpotBackend{deps: deps, beacon: beacon}
	if err := decodeConfig(raw, &b.config); err != nil {
		return nil, err
	}
	if err := deps.Validator.Struct(b.config); err != nil {
		return nil, fmt.Errorf("invalid spot config: %w", err)
	}
	return b, nil
}

func (b *SpotBackend) Kind() Kind { return KindSpot }

// HandlePing ingests a single feed message.
func (b *SpotBackend) HandlePing(ctx context.Context, raw json.RawMessage) (Result, error) {
	var msg spot.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg.Raw = raw
	ping, _, err := b.ingest(ctx, msg)
	if err != nil {
		return Result{}, err
	}
	return Result{Ping: ping}, nil
}

// ProcessMessages ingests every feed message addressed to this beacon's
// device. Messages already stored for the same timestamp are skipped, and so
// are messages that cannot be turned into a ping. Only storage and ownership
// errors end the batch.
func (b *SpotBackend) ProcessMessages(ctx context.Context, messages []spot.Message) (SpotStats, error) {
	var stats SpotStats
	for _, msg := range messages {
		if msg.MessengerID != b.config.DeviceID {
			continue
		}
		stats.Matched++
		if msg.MessageType != spot.MessageTypeTrack {
			b.deps.Logger.Warn("unsupported spot message type",
				zap.String("beacon_id", b.beacon.ID.String()),
				zap.String("message_type", msg.MessageType),
				zap.Int64("message_id", msg.ID),
			)
			stats.Skipped++
			continue
		}
		ping, created, err := b.ingest(ctx, msg)
		if errors.Is(err, ErrInvalidPayload) {
			b.deps.Logger.Warn("skipping malformed spot message",
				zap.String("beacon_id", b.beacon.ID.String()),
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, err
		}
		if ping == nil {
			stats.Skipped++
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Duplicates++
		}
	}
	return stats, nil
}

func (b *SpotBackend) ingest(ctx context.Context, msg spot.Message) (*models.Ping, bool, error) {
	if msg.MessengerID != b.config.DeviceID || msg.MessageType != spot.MessageTypeTrack {
		return nil, false, nil
	}
	reportedAt, err := msg.ReportedAt()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	owner, err := OwnerOf(b.beacon)
	if err != nil {
		return nil, false, err
	}
	ping, err := NewPing(b.beacon, owner, PingInput{
		ReportedAt: reportedAt,
		Latitude:   msg.Latitude,
		Longitude:  msg.Longitude,
		Raw:        msg.Raw,
	})
	if err != nil {
		return nil, false, err
	}
	created, err := b.deps.Repo.CreatePingIfAbsent(ctx, ping)
	if err != nil {
		return nil, false, fmt.Errorf("create spot ping: %w", err)
	}
	return ping, created, nil
}
