package service

import "errors"

var (
	ErrMissionNotFound = errors.New("mission not found")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrBeaconNotFound  = errors.New("beacon not found")
	// ErrBackendMismatch is returned when a report arrives through an
	// endpoint that is not the beacon's configured backend.
	ErrBackendMismatch = errors.New("beacon is configured for a different backend")
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrInvalidInput    = errors.New("invalid input")
)
