package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrUnknownBackend = errors.New("unknown tracking backend")

// BackendKind names one of the built-in telemetry backends.
type BackendKind string

const (
	BackendOwnTracks BackendKind = "owntracks"
	BackendSpot      BackendKind = "spot"
	BackendAPI       BackendKind = "bmcc_api"
)

// Rows written before the enumeration existed store dotted class paths.
var backendAliases = map[string]BackendKind{
	"bmcc.tracking.backends.owntracks.OwnTracks": BackendOwnTracks,
	"bmcc.tracking.backends.spot.SpotBackend":    BackendSpot,
	"bmcc.tracking.backends.bmcc_api.ApiBackend": BackendAPI,
}

// ParseBackendKind maps a stored class path to a backend kind. An empty class
// path yields ("", nil): the beacon has no backend.
func ParseBackendKind(classPath string) (BackendKind, error) {
	switch kind := BackendKind(classPath); kind {
	case "":
		return "", nil
	case BackendOwnTracks, BackendSpot, BackendAPI:
		return kind, nil
	}
	if kind, ok := backendAliases[classPath]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, classPath)
}

// ClassPaths lists every stored spelling of kind, for lookups by backend.
func (k BackendKind) ClassPaths() []string {
	out := []string{string(k)}
	for path, kind := range backendAliases {
		if kind == k {
			out = append(out, path)
		}
	}
	return out
}

// Beacon is a telemetry source attached to an asset.
type Beacon struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Asset   *Asset    `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Identifier  string `gorm:"type:varchar(128);not null;uniqueIndex" json:"identifier"`
	Description string `gorm:"type:text" json:"description"`
	Active      bool   `gorm:"not null;index" json:"active"`

	BackendClassPath string         `gorm:"type:varchar(255);not null;index" json:"backend_class_path"`
	BackendConfig    datatypes.JSON `gorm:"type:jsonb" json:"backend_config"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`

	backend backendMemo
}

func (Beacon) TableName() string {
	return "beacons"
}

func (b *Beacon) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Beacon) BeforeSave(tx *gorm.DB) error {
	_, err := ParseBackendKind(b.BackendClassPath)
	return err
}

// backendMemo holds the live backend derived from the class path and config
// it was computed from.
type backendMemo struct {
	resolved  bool
	classPath string
	config    string
	value     any
	err       error
}

func (m *backendMemo) current(b *Beacon) bool {
	return m.resolved && m.classPath == b.BackendClassPath && m.config == string(b.BackendConfig)
}

// SetBackend replaces the backend selection and drops the cached instance.
func (b *Beacon) SetBackend(classPath string, config datatypes.JSON) {
	b.BackendClassPath = classPath
	b.BackendConfig = config
	b.backend = backendMemo{}
}

func (b *Beacon) SetBackendConfig(config datatypes.JSON) {
	b.BackendConfig = config
	b.backend = backendMemo{}
}

// CachedBackend returns the memoized backend, calling build when nothing is
// cached or when the class path or config changed since the last build.
// Build failures are memoized as well.
func (b *Beacon) CachedBackend(build func(*Beacon) (any, error)) (any, error) {
	if b.backend.current(b) {
		return b.backend.value, b.backend.err
	}
	value, err := build(b)
	b.backend = backendMemo{
		resolved:  true,
		classPath: b.BackendClassPath,
		config:    string(b.BackendConfig),
		value:     value,
		err:       err,
	}
	return value, err
}

// BackendError returns the memoized resolution failure, if any.
func (b *Beacon) BackendError() error {
	if !b.backend.current(b) {
		return nil
	}
	return b.backend.err
}
