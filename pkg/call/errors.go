package call

import "errors"

var (
	// ErrNotWaiting is returned when Start is called on a call that
	// has already started.
	ErrNotWaiting = errors.New("call: already started")

	// ErrCallEnded is returned for operations on an ended call.
	ErrCallEnded = errors.New("call: call ended")

	// ErrBootstrapFailed wraps interview service failures during call
	// setup. The call proceeds in degraded mode after it is surfaced.
	ErrBootstrapFailed = errors.New("call: interview bootstrap failed")

	// ErrSubmissionFailed wraps transient utterance submission
	// failures. The call stays active; the microphone is re-enabled.
	ErrSubmissionFailed = errors.New("call: utterance submission failed")
)
