package call

import (
	"sync"
	"time"
)

// TurnMetrics tracks latency at each stage of one interview turn.
// All durations are measured from the moment the utterance was
// finalized (the candidate stopped talking).
type TurnMetrics struct {
	Turn int

	// Timestamps for key events
	CaptureEndTime time.Time // When the utterance was finalized
	SubmitTime     time.Time // When the upload started
	ResponseTime   time.Time // When the service replied
	PlaybackTime   time.Time // When the next prompt started playing

	// Computed latencies (from capture end)
	SubmitLatency   time.Duration // Time spent waiting on the service
	PlaybackLatency time.Duration // Time until the next prompt was audible
	UtteranceBytes  int
}

// MetricsCollector collects per-turn latency metrics. It is
// goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics

	onUpdate func(TurnMetrics)
}

// NewMetricsCollector creates a metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, 32),
	}
}

// OnUpdate sets a callback that fires whenever a turn completes.
func (m *MetricsCollector) OnUpdate(fn func(TurnMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkCaptureEnd records the finalized utterance starting a new turn.
// This is the reference point for the turn's latency measurements.
func (m *MetricsCollector) MarkCaptureEnd(turn, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = TurnMetrics{
		Turn:           turn,
		CaptureEndTime: time.Now(),
		UtteranceBytes: bytes,
	}
}

// MarkSubmit records the start of the service upload.
func (m *MetricsCollector) MarkSubmit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.SubmitTime = time.Now()
}

// MarkResponse records the service reply.
func (m *MetricsCollector) MarkResponse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ResponseTime = time.Now()
	if !m.current.CaptureEndTime.IsZero() {
		m.current.SubmitLatency = m.current.ResponseTime.Sub(m.current.CaptureEndTime)
	}
}

// MarkPlayback records the next prompt becoming audible and archives
// the turn.
func (m *MetricsCollector) MarkPlayback() {
	m.mu.Lock()
	m.current.PlaybackTime = time.Now()
	if !m.current.CaptureEndTime.IsZero() {
		m.current.PlaybackLatency = m.current.PlaybackTime.Sub(m.current.CaptureEndTime)
	}
	m.history = append(m.history, m.current)
	if len(m.history) > 32 {
		m.history = m.history[1:]
	}
	turn := m.current
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(turn)
	}
}

// Current returns the current turn's metrics snapshot.
func (m *MetricsCollector) Current() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average latencies over archived turns.
func (m *MetricsCollector) Average() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return TurnMetrics{}
	}

	var avg TurnMetrics
	for _, h := range m.history {
		avg.SubmitLatency += h.SubmitLatency
		avg.PlaybackLatency += h.PlaybackLatency
	}
	n := time.Duration(len(m.history))
	avg.SubmitLatency /= n
	avg.PlaybackLatency /= n
	return avg
}
