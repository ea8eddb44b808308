package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GaretJax/bmcc/internal/models"
)

// APIPing is the body posted by the GNSS logger.
type APIPing struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// APIBackend ingests reports pushed by bmcc's own hardware. The device sends
// no timestamp; pings are stamped with the receive time.
type APIBackend struct {
	deps   Deps
	beacon *models.Beacon
}

func newAPI(deps Deps, beacon *models.Beacon, _ json.RawMessage) (Backend, error) {
	return &APIBackend{deps: deps, beacon: beacon}, nil
}

func (b *APIBackend) Kind() Kind { return KindAPI }

func (b *APIBackend) HandlePing(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in APIPing
	if err := json.Unmarshal(raw, &in); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := b.deps.Validator.Struct(in); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	owner, err := OwnerOf(b.beacon)
	if err != nil {
		return Result{}, err
	}
	ping, err := NewPing(b.beacon, owner, PingInput{
		ReportedAt: b.deps.Now(),
		Latitude:   *in.Latitude,
		Longitude:  *in.Longitude,
		Altitude:   in.Altitude,
		Raw:        raw,
	})
	if err != nil {
		return Result{}, err
	}
	if err := b.deps.Repo.CreatePing(ctx, ping); err != nil {
		return Result{}, fmt.Errorf("create ping: %w", err)
	}
	return Result{Ping: ping}, nil
}
