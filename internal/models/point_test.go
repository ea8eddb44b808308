package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointValueScanHex(t *testing.T) {
	p := NewPoint(7.4474, 46.9480)

	v, err := p.Value()
	require.NoError(t, err)
	s, ok := v.(string)
	require.True(t, ok)

	var got Point
	require.NoError(t, got.Scan(s))
	assert.InDelta(t, 7.4474, got.Lon(), 1e-9)
	assert.InDelta(t, 46.9480, got.Lat(), 1e-9)

	var fromBytes Point
	require.NoError(t, fromBytes.Scan([]byte(s)))
	assert.Equal(t, got, fromBytes)
}

func TestPointScanRejectsGarbage(t *testing.T) {
	var p Point
	assert.Error(t, p.Scan("not-hex"))
	assert.Error(t, p.Scan(nil))
	assert.Error(t, p.Scan(42))
}

func TestPointJSON(t *testing.T) {
	raw, err := json.Marshal(NewPoint(-10, 45))
	require.NoError(t, err)
	assert.JSONEq(t, `{"latitude":45,"longitude":-10}`, string(raw))

	var p Point
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, NewPoint(-10, 45), p)
}

func TestPointValid(t *testing.T) {
	assert.True(t, NewPoint(180, -90).Valid())
	assert.False(t, NewPoint(181, 0).Valid())
	assert.False(t, NewPoint(0, 91).Valid())
}
