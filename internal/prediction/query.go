package prediction

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/GaretJax/bmcc/internal/models"
)

// NormalizeLongitude maps a WGS84 longitude to the 0-360 range Tawhiri
// expects.
func NormalizeLongitude(lon float64) float64 {
	if lon < 0 {
		return 360 + lon
	}
	return lon
}

// BuildQuery renders the request parameters for p. Additional parameters
// override the launch fields computed here.
func BuildQuery(p *models.Prediction) url.Values {
	q := url.Values{}
	q.Set("launch_latitude", formatFloat(p.LaunchLocation.Lat()))
	q.Set("launch_longitude", formatFloat(NormalizeLongitude(p.LaunchLocation.Lon())))
	alt := 0.0
	if p.LaunchAltitude != nil {
		alt = *p.LaunchAltitude
	}
	q.Set("launch_altitude", formatFloat(alt))
	q.Set("launch_datetime", p.LaunchAt.UTC().Format(time.RFC3339))
	for k, v := range p.AdditionalParameters {
		q.Set(k, formatValue(v))
	}
	return q
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
