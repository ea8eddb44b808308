package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/models"
)

const ownTracksLocation = "location"

// OwnTracksConfig is the backend_config of an OwnTracks beacon.
type OwnTracksConfig struct {
	// ShowPeers sends the positions of the mission's other beacons back to
	// the device after every report.
	ShowPeers bool `json:"show_peers"`
}

// OwnTracksMessage is the subset of the OwnTracks JSON format that is read.
// See https://owntracks.org/booklet/tech/json/.
type OwnTracksMessage struct {
	Type  string   `json:"_type"`
	Lat   *float64 `json:"lat" validate:"required,latitude"`
	Lon   *float64 `json:"lon" validate:"required,longitude"`
	Alt   *float64 `json:"alt,omitempty"`
	Acc   *float64 `json:"acc,omitempty" validate:"omitempty,gte=0"`
	Vel   *float64 `json:"vel,omitempty"`
	Cog   *float64 `json:"cog,omitempty"`
	Tst   *int64   `json:"tst" validate:"required,gt=0"`
	Tid   string   `json:"tid,omitempty"`
	Topic string   `json:"topic,omitempty"`
}

// ParseOwnTracks decodes a webhook body.
func ParseOwnTracks(raw json.RawMessage) (OwnTracksMessage, error) {
	var msg OwnTracksMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return msg, nil
}

func (m OwnTracksMessage) IsLocation() bool {
	return m.Type == ownTracksLocation
}

// TopicIdentifiers lists the beacon identifiers a topic may be registered under,
// most specific first: the full topic, then its last path segment.
func TopicIdentifiers(topic string) []string {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		return nil
	}
	out := []string{topic}
	if i := strings.LastIndex(topic, "/"); i >= 0 && i < len(topic)-1 {
		out = append(out, topic[i+1:])
	}
	return out
}

type OwnTracksBackend struct {
	deps   Deps
	beacon *models.Beacon
	config OwnTracksConfig
}

func newOwnTracks(deps Deps, beacon *models.Beacon, raw json.RawMessage) (Backend, error) {
	b := &OwnTracksBackend{deps: deps, beacon: beacon}
	if err := decodeConfig(raw, &b.config); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *OwnTracksBackend) Kind() Kind { return KindOwnTracks }

func (b *OwnTracksBackend) Config() OwnTracksConfig { return b.config }

func (b *OwnTracksBackend) HandlePing(ctx context.Context, raw json.RawMessage) (Result, error) {
	msg, err := ParseOwnTracks(raw)
	if err != nil {
		return Result{}, err
	}
	if !msg.IsLocation() {
		return Result{}, nil
	}
	if err := b.deps.Validator.Struct(msg); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	owner, err := OwnerOf(b.beacon)
	if err != nil {
		return Result{}, err
	}
	ping, err := NewPing(b.beacon, owner, PingInput{
		ReportedAt: time.Unix(*msg.Tst, 0).UTC(),
		Latitude:   *msg.Lat,
		Longitude:  *msg.Lon,
		Altitude:   msg.Alt,
		Accuracy:   msg.Acc,
		Speed:      msg.Vel,
		Course:     msg.Cog,
		Raw:        raw,
	})
	if err != nil {
		return Result{}, err
	}
	if err := b.deps.Repo.CreatePing(ctx, ping); err != nil {
		return Result{}, fmt.Errorf("create ping: %w", err)
	}

	res := Result{Ping: ping, Outbound: []json.RawMessage{}}

	queued, err := b.deps.Repo.ListPendingOutboundMessages(ctx, b.beacon.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list outbound messages: %w", err)
	}
	for _, q := range queued {
		res.Outbound = append(res.Outbound, json.RawMessage(q.Message))
	}
	res.Queued = queued

	if b.config.ShowPeers {
		peers, err := b.peerMessages(ctx, owner)
		if err != nil {
			return Result{}, err
		}
		res.Outbound = append(res.Outbound, peers...)
	}
	return res, nil
}

// peerMessages builds the clear command, then one card per reporting
// sibling, then one location per sibling's latest ping. Clients drop stale
// markers before the new ones arrive only in this order.
func (b *OwnTracksBackend) peerMessages(ctx context.Context, owner Owner) ([]json.RawMessage, error) {
	siblings, err := b.deps.Repo.ListActiveSiblingBeacons(ctx, owner.MissionID, b.beacon.ID)
	if err != nil {
		return nil, fmt.Errorf("list sibling beacons: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(siblings))
	for _, s := range siblings {
		ids = append(ids, s.ID)
	}
	latest, err := b.deps.Repo.LatestPingsByBeacons(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("latest sibling pings: %w", err)
	}

	out := []json.RawMessage{mustJSON(map[string]any{"_type": "cmd", "action": "clearWaypoints"})}
	reporting := make([]models.Beacon, 0, len(siblings))
	for _, s := range siblings {
		if _, ok := latest[s.ID]; ok {
			reporting = append(reporting, s)
		}
	}
	for i := range reporting {
		out = append(out, mustJSON(peerCard(&reporting[i])))
	}
	for i := range reporting {
		out = append(out, mustJSON(peerLocation(&reporting[i], latest[reporting[i].ID])))
	}
	b.deps.Logger.Debug("owntracks peers",
		zap.String("beacon_id", b.beacon.ID.String()),
		zap.Int("siblings", len(siblings)),
		zap.Int("reporting", len(reporting)),
	)
	return out, nil
}

func peerTopic(b *models.Beacon) string {
	if strings.HasPrefix(b.Identifier, "owntracks/") {
		return b.Identifier
	}
	return "owntracks/bmcc/" + b.Identifier
}

func peerTid(b *models.Beacon) string {
	src := b.Identifier
	if b.Asset != nil && b.Asset.Callsign != "" {
		src = b.Asset.Callsign
	}
	src = strings.ToUpper(strings.TrimSpace(src))
	if len(src) > 2 {
		src = src[len(src)-2:]
	}
	return src
}

func peerName(b *models.Beacon) string {
	if b.Asset == nil {
		return b.Identifier
	}
	if b.Asset.Callsign != "" {
		return b.Asset.Callsign
	}
	return b.Asset.Name
}

func peerCard(b *models.Beacon) map[string]any {
	return map[string]any{
		"_type": "card",
		"tid":   peerTid(b),
		"name":  peerName(b),
		"topic": peerTopic(b),
	}
}

func peerLocation(b *models.Beacon, p models.Ping) map[string]any {
	msg := map[string]any{
		"_type": "location",
		"tid":   peerTid(b),
		"topic": peerTopic(b),
		"lat":   p.Position.Lat(),
		"lon":   p.Position.Lon(),
		"tst":   p.ReportedAt.Unix(),
	}
	if p.Altitude != nil {
		msg["alt"] = *p.Altitude
	}
	if p.Accuracy != nil {
		msg["acc"] = *p.Accuracy
	}
	if p.Speed != nil {
		msg["vel"] = *p.Speed
	}
	if p.Course != nil {
		msg["cog"] = *p.Course
	}
	return msg
}

func mustJSON(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
