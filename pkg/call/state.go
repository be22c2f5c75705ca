package call

// CallState is the lifecycle of one interview call.
type CallState int

const (
	// StateWaiting is the initial state before Start.
	StateWaiting CallState = iota

	// StateConnecting means the interview service is being contacted.
	StateConnecting

	// StateActive is the steady turn-taking state.
	StateActive

	// StateEnded is terminal. All resources are released.
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// AvatarState is the visual phase shown to the candidate. It mirrors
// orchestration: the interviewer speaking, the candidate speaking, or
// the service thinking.
type AvatarState int

const (
	// AvatarIdle means nobody is speaking.
	AvatarIdle AvatarState = iota

	// AvatarSpeaking means prompt audio is playing. The microphone is
	// muted in this phase.
	AvatarSpeaking

	// AvatarListening means the candidate is audibly speaking into an
	// open microphone.
	AvatarListening

	// AvatarProcessing means an utterance is being submitted. The
	// microphone is muted in this phase.
	AvatarProcessing
)

func (s AvatarState) String() string {
	switch s {
	case AvatarIdle:
		return "idle"
	case AvatarSpeaking:
		return "speaking"
	case AvatarListening:
		return "listening"
	case AvatarProcessing:
		return "processing"
	}
	return "unknown"
}

// micState guards microphone enablement so overlapping enable attempts
// cannot acquire the device twice.
type micState int

const (
	micIdle micState = iota
	micStarting
	micStarted
)

// submitState guards utterance submission. A second utterance arriving
// while one is in flight is dropped, never queued.
type submitState int

const (
	submitIdle submitState = iota
	submitInFlight
)
