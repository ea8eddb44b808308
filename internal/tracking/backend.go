package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
)

// Kind identifies a backend implementation.
type Kind = models.BackendKind

const (
	KindOwnTracks = models.BackendOwnTracks
	KindSpot      = models.BackendSpot
	KindAPI       = models.BackendAPI
)

// ErrInvalidPayload marks input that cannot be turned into a ping.
var ErrInvalidPayload = errors.New("invalid payload")

// Backend turns one raw report into a ping plus the messages to send back to
// the device.
type Backend interface {
	Kind() Kind
	HandlePing(ctx context.Context, raw json.RawMessage) (Result, error)
}

// Result is the outcome of HandlePing. A nil Ping is an acknowledged no-op.
type Result struct {
	Ping     *models.Ping
	Outbound []json.RawMessage
	// Queued are the stored messages included in Outbound; the caller marks
	// them sent once delivery succeeded.
	Queued []models.OutboundMessage
}

type Deps struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Validator *validator.Validate
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// ResolutionError reports why a beacon's backend could not be built.
type ResolutionError struct {
	ClassPath string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve backend %q: %v", e.ClassPath, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type constructor func(Deps, *models.Beacon, json.RawMessage) (Backend, error)

var constructors = map[Kind]constructor{
	KindOwnTracks: newOwnTracks,
	KindSpot:      newSpot,
	KindAPI:       newAPI,
}

// Resolve returns the beacon's backend, building it on first use and reusing
// it for later calls on the same beacon value until its class path or config
// changes. A beacon without a class path has no backend: (nil, nil).
func Resolve(deps Deps, beacon *models.Beacon) (Backend, error) {
	if beacon == nil {
		return nil, nil
	}
	v, err := beacon.CachedBackend(func(b *models.Beacon) (any, error) {
		backend, err := build(deps.withDefaults(), b)
		if backend == nil {
			return nil, err
		}
		return backend, err
	})
	if err != nil {
		return nil, err
	}
	backend, _ := v.(Backend)
	return backend, nil
}

// Lookup is Resolve for callers that treat a broken backend like a missing
// one. The failure stays available through beacon.BackendError().
func Lookup(deps Deps, beacon *models.Beacon) Backend {
	backend, err := Resolve(deps, beacon)
	if err != nil {
		deps.withDefaults().Logger.Warn("beacon backend unavailable",
			zap.String("beacon_id", beacon.ID.String()),
			zap.String("class_path", beacon.BackendClassPath),
			zap.Error(err),
		)
		return nil
	}
	return backend
}

func build(deps Deps, beacon *models.Beacon) (Backend, error) {
	kind, err := models.ParseBackendKind(beacon.BackendClassPath)
	if err != nil {
		return nil, &ResolutionError{ClassPath: beacon.BackendClassPath, Err: err}
	}
	if kind == "" {
		return nil, nil
	}
	ctor, ok := constructors[kind]
	if !ok {
		return nil, &ResolutionError{ClassPath: beacon.BackendClassPath, Err: models.ErrUnknownBackend}
	}
	backend, err := ctor(deps, beacon, json.RawMessage(beacon.BackendConfig))
	if err != nil {
		return nil, &ResolutionError{ClassPath: beacon.BackendClassPath, Err: err}
	}
	return backend, nil
}

// decodeConfig unmarshals a backend config blob; an empty blob leaves dst at
// its zero value.
func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode backend config: %w", err)
	}
	return nil
}
