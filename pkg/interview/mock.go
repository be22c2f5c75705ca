package interview

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockCall records a single call to the mock for assertions.
type MockCall struct {
	Method      string
	InterviewID string
	Bytes       int
	Time        time.Time
}

// Mock is a scriptable Service for tests. Without overrides it walks a
// fixed list of prompts: each submission returns the next prompt, the
// last returns completion.
type Mock struct {
	// StartFunc overrides Start behavior.
	StartFunc func(ctx context.Context, req StartRequest) (*Session, error)

	// SubmitFunc overrides SubmitUtterance behavior.
	SubmitFunc func(ctx context.Context, interviewID string, audio []byte, mimeType string) (*TurnResult, error)

	// CompleteFunc overrides Complete behavior.
	CompleteFunc func(ctx context.Context, interviewID string) (*Summary, error)

	// StateFunc overrides State behavior.
	StateFunc func(ctx context.Context, interviewID string) (*State, error)

	mu      sync.Mutex
	calls   []MockCall
	prompts []string
	turn    int
}

// NewMock creates a mock interview service scripted with the given
// prompts. The first prompt is returned by Start; each SubmitUtterance
// returns the next, and the one after the last prompt is completion.
func NewMock(prompts ...string) *Mock {
	if len(prompts) == 0 {
		prompts = []string{"Tell me about yourself."}
	}
	return &Mock{prompts: prompts}
}

// Start opens a scripted session.
func (m *Mock) Start(ctx context.Context, req StartRequest) (*Session, error) {
	m.record("Start", "", 0)

	if m.StartFunc != nil {
		return m.StartFunc(ctx, req)
	}

	return &Session{
		InterviewID:  "mock-interview-1",
		Status:       "active",
		CurrentStage: "warmup",
		Question:     m.prompts[0],
		MessageCount: 1,
	}, nil
}

// SubmitUtterance advances the script by one turn.
func (m *Mock) SubmitUtterance(ctx context.Context, interviewID string, audio []byte, mimeType string) (*TurnResult, error) {
	m.record("SubmitUtterance", interviewID, len(audio))

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, interviewID, audio, mimeType)
	}

	m.mu.Lock()
	m.turn++
	turn := m.turn
	m.mu.Unlock()

	result := &TurnResult{
		InterviewID:  interviewID,
		Transcript:   fmt.Sprintf("mock transcript %d", turn),
		Status:       "active",
		CurrentStage: "technical",
		Evaluation:   &Evaluation{Confidence: 0.7, Technical: 0.6},
	}
	if turn < len(m.prompts) {
		result.NextQuestion = m.prompts[turn]
	} else {
		result.Status = "complete"
		result.CurrentStage = "complete"
		result.IsComplete = true
	}
	return result, nil
}

// Complete returns a scripted summary.
func (m *Mock) Complete(ctx context.Context, interviewID string) (*Summary, error) {
	m.record("Complete", interviewID, 0)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, interviewID)
	}

	m.mu.Lock()
	answered := m.turn
	m.mu.Unlock()

	return &Summary{
		InterviewID:    interviewID,
		Status:         "complete",
		Recommendation: "maybe",
		Scores: Scores{
			Confidence:        0.7,
			Technical:         0.6,
			Clarity:           0.65,
			QuestionsAnswered: answered,
		},
	}, nil
}

// State returns a scripted snapshot.
func (m *Mock) State(ctx context.Context, interviewID string) (*State, error) {
	m.record("State", interviewID, 0)

	if m.StateFunc != nil {
		return m.StateFunc(ctx, interviewID)
	}

	m.mu.Lock()
	turn := m.turn
	m.mu.Unlock()

	return &State{
		InterviewID:     interviewID,
		CurrentStage:    "technical",
		QuestionsAsked:  turn,
		AvgConfidence:   0.7,
		AvgTechnical:    0.6,
		ConfidenceTrend: "stable",
		IsComplete:      turn >= len(m.prompts),
	}, nil
}

// ResolveAudioURL returns the reference unchanged.
func (m *Mock) ResolveAudioURL(ref string) string {
	return ref
}

func (m *Mock) record(method, interviewID string, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:      method,
		InterviewID: interviewID,
		Bytes:       bytes,
		Time:        time.Now(),
	})
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of calls to the given method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears recorded calls and rewinds the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.turn = 0
}

var _ Service = (*Mock)(nil)
