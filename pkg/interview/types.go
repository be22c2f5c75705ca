// Package interview is the HTTP client for the external interview
// service. The service owns question generation, transcription and
// scoring; this package only speaks its boundary: start a session,
// submit one audio utterance per turn, fetch state, and complete.
package interview

import "context"

// StartRequest identifies the job and candidate for a new session.
type StartRequest struct {
	JobID         string `json:"job_id"`
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name,omitempty"`
}

// Session is a newly started interview with its first prompt.
type Session struct {
	InterviewID  string `json:"interview_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage"`
	Question     string `json:"current_question"`
	MessageCount int    `json:"message_count"`

	// AudioURL points at synthesized speech for the first prompt.
	// Empty when the service could not generate audio; the caller
	// falls back to local synthesis.
	AudioURL string `json:"audio_url,omitempty"`
}

// TurnResult is the service's reply to one submitted utterance.
type TurnResult struct {
	InterviewID  string `json:"interview_id"`
	Transcript   string `json:"transcript"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage"`
	NextQuestion string `json:"next_question,omitempty"`
	IsComplete   bool   `json:"is_complete"`
	AudioURL     string `json:"audio_url,omitempty"`

	// Evaluation is nil until the service has scored at least one
	// answer.
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// Evaluation is the running score summary for the candidate.
type Evaluation struct {
	Confidence float64 `json:"confidence"`
	Technical  float64 `json:"technical"`
}

// State is a point-in-time snapshot of a session.
type State struct {
	InterviewID     string  `json:"interview_id"`
	CurrentStage    string  `json:"current_stage"`
	QuestionsAsked  int     `json:"questions_asked"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgTechnical    float64 `json:"avg_technical"`
	ConfidenceTrend string  `json:"confidence_trend"`
	IsComplete      bool    `json:"is_complete"`
}

// Summary is the final result returned when a session completes.
type Summary struct {
	InterviewID    string         `json:"interview_id"`
	Status         string         `json:"status"`
	Recommendation string         `json:"recommendation,omitempty"`
	Feedback       map[string]any `json:"feedback,omitempty"`
	Scores         Scores         `json:"scores"`
}

// Scores aggregates the per-dimension averages for a whole session.
type Scores struct {
	Confidence        float64 `json:"confidence"`
	Technical         float64 `json:"technical"`
	Clarity           float64 `json:"clarity"`
	QuestionsAnswered int     `json:"questions_answered"`
}

// Service is the boundary the orchestrator depends on. Client is the
// real implementation; Mock scripts turns for tests.
type Service interface {
	// Start opens a session and returns the first prompt.
	Start(ctx context.Context, req StartRequest) (*Session, error)

	// SubmitUtterance uploads one finalized audio segment and returns
	// the transcript and the next prompt, or completion.
	SubmitUtterance(ctx context.Context, interviewID string, audio []byte, mimeType string) (*TurnResult, error)

	// Complete ends the session and returns the final results.
	Complete(ctx context.Context, interviewID string) (*Summary, error)

	// State fetches the current session snapshot.
	State(ctx context.Context, interviewID string) (*State, error)

	// ResolveAudioURL turns a prompt audio reference from a response
	// into an absolute URL. Absolute inputs pass through unchanged.
	ResolveAudioURL(ref string) string
}
