package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/GaretJax/bmcc/internal/models"
)

var ErrNoOwner = errors.New("beacon is not attached to an asset")

// Owner is the asset and mission a ping is attributed to.
type Owner struct {
	AssetID   uuid.UUID
	MissionID uuid.UUID
}

// OwnerOf reads the owner from the beacon's loaded asset.
func OwnerOf(beacon *models.Beacon) (Owner, error) {
	if beacon == nil || beacon.Asset == nil || beacon.Asset.ID != beacon.AssetID {
		return Owner{}, ErrNoOwner
	}
	return Owner{AssetID: beacon.Asset.ID, MissionID: beacon.Asset.MissionID}, nil
}

type PingInput struct {
	ReportedAt time.Time
	Latitude   float64
	Longitude  float64
	Altitude   *float64
	Accuracy   *float64
	Speed      *float64
	Course     *float64
	Raw        json.RawMessage
}

// NewPing builds an unsaved ping for beacon. reported_at is kept as given and
// the raw source payload becomes the ping metadata.
func NewPing(beacon *models.Beacon, owner Owner, in PingInput) (*models.Ping, error) {
	if beacon == nil {
		return nil, fmt.Errorf("%w: no beacon", ErrInvalidPayload)
	}
	if owner.AssetID == uuid.Nil || owner.MissionID == uuid.Nil {
		return nil, ErrNoOwner
	}
	if in.ReportedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidPayload)
	}
	pos := models.NewPoint(in.Longitude, in.Latitude)
	if !pos.Valid() || math.IsNaN(in.Latitude) || math.IsNaN(in.Longitude) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidPayload)
	}
	return &models.Ping{
		MissionID:  owner.MissionID,
		AssetID:    owner.AssetID,
		BeaconID:   beacon.ID,
		ReportedAt: in.ReportedAt,
		Position:   pos,
		Altitude:   roundInt(in.Altitude),
		Accuracy:   roundInt(in.Accuracy),
		Speed:      roundInt(in.Speed),
		Course:     in.Course,
		Metadata:   datatypes.JSON(in.Raw),
	}, nil
}

func roundInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(math.Round(*v))
	return &n
}
