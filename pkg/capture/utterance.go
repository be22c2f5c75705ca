package capture

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is one finalized spoken segment. The engine hands it off by
// value and keeps no reference to the data afterwards.
type Utterance struct {
	// ID uniquely identifies this segment.
	ID string

	// Data is the encoded audio payload.
	Data []byte

	// MIMEType tags the payload encoding, e.g. "audio/ogg; codecs=opus"
	// or "audio/wav".
	MIMEType string

	// Duration is the length of the captured audio.
	Duration time.Duration

	// CapturedAt is when the segment was finalized.
	CapturedAt time.Time
}

// Size returns the payload size in bytes.
func (u *Utterance) Size() int {
	return len(u.Data)
}

func newUtterance(data []byte, mimeType string, duration time.Duration, at time.Time) Utterance {
	return Utterance{
		ID:         uuid.NewString(),
		Data:       data,
		MIMEType:   mimeType,
		Duration:   duration,
		CapturedAt: at,
	}
}
