package models

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

// SRID of every stored geography (WGS84).
const SRID = 4326

// Point is a longitude/latitude pair persisted as a PostGIS
// geography(Point,4326). It is written as hex EWKB, which PostGIS accepts as
// text input for geography columns, and read back from EWKB in either hex or
// binary form.
type Point orb.Point

func NewPoint(lon, lat float64) Point {
	return Point{lon, lat}
}

func (p Point) Lon() float64 { return p[0] }
func (p Point) Lat() float64 { return p[1] }

// Valid reports whether the coordinates are within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lon() >= -180 && p.Lon() <= 180
}

func (p Point) Value() (driver.Value, error) {
	return ewkb.MarshalToHex(orb.Point(p), SRID)
}

func (p *Point) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return fmt.Errorf("scan point: null value")
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan point: unsupported type %T", src)
	}
	// Binary EWKB starts with the byte-order marker (0x00 or 0x01); anything
	// else is the hex text form.
	if len(raw) > 0 && raw[0] != 0x00 && raw[0] != 0x01 {
		decoded, err := hex.DecodeString(string(raw))
		if err != nil {
			return fmt.Errorf("scan point: %w", err)
		}
		raw = decoded
	}
	geom, _, err := ewkb.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("scan point: %w", err)
	}
	pt, ok := geom.(orb.Point)
	if !ok {
		return fmt.Errorf("scan point: unexpected geometry %s", geom.GeoJSONType())
	}
	*p = Point(pt)
	return nil
}

type pointJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{Latitude: p.Lat(), Longitude: p.Lon()})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var v pointJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = NewPoint(v.Longitude, v.Latitude)
	return nil
}
