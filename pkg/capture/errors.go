package capture

import "errors"

var (
	// ErrDeviceUnavailable indicates the audio input device could not be
	// acquired (permission denied, no device, device busy) or was lost
	// mid-session.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("capture: engine closed")
)
