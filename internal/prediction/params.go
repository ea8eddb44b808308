package prediction

import (
	"sort"

	"github.com/GaretJax/bmcc/internal/models"
)

const (
	KeyAscentRate    = "ascent_rate"
	KeyBurstAltitude = "burst_altitude"
	KeyDescentRate   = "descent_rate"
	KeyProfile       = "profile"
	KeyPredType      = "pred_type"
)

// RequiredKeys must be present before a prediction can be requested.
var RequiredKeys = []string{KeyAscentRate, KeyBurstAltitude, KeyDescentRate}

// Parameters are the additional query parameters of a prediction.
type Parameters map[string]any

// MissionProfile returns the mission's flight-profile fields that are set.
func MissionProfile(m *models.Mission) Parameters {
	out := Parameters{}
	if m == nil {
		return out
	}
	if m.AscentRate != nil {
		out[KeyAscentRate] = *m.AscentRate
	}
	if m.BurstAltitude != nil {
		out[KeyBurstAltitude] = *m.BurstAltitude
	}
	if m.DescentRate != nil {
		out[KeyDescentRate] = *m.DescentRate
	}
	return out
}

// Merge copies layers into a new map; later layers win.
func Merge(layers ...map[string]any) Parameters {
	out := Parameters{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// SetDefaults fills keys of defaults that p lacks.
func (p Parameters) SetDefaults(defaults map[string]any) Parameters {
	for k, v := range defaults {
		if _, ok := p[k]; !ok {
			p[k] = v
		}
	}
	return p
}

// Missing lists the required keys absent from p, sorted.
func (p Parameters) Missing() []string {
	var out []string
	for _, k := range RequiredKeys {
		if v, ok := p[k]; !ok || v == nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
