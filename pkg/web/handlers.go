package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voxhire/voxhire/pkg/hub"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()

	return c.JSON(fiber.Map{
		"call":    state,
		"clients": s.stateHub.ClientCount() + s.levelHub.ClientCount() + s.transcriptHub.ClientCount(),
	})
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.transcriptMu.RLock()
	entries := make([]TranscriptEntry, len(s.transcript))
	copy(entries, s.transcript)
	s.transcriptMu.RUnlock()

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.metrics == nil {
		return c.JSON(fiber.Map{"turns": 0})
	}

	avg := s.metrics.Average()
	current := s.metrics.Current()
	return c.JSON(fiber.Map{
		"turns":                  s.metrics.Turns(),
		"current_turn":           current.Turn,
		"avg_submit_latency_ms":  avg.SubmitLatency.Milliseconds(),
		"avg_playback_delay_ms":  avg.PlaybackLatency.Milliseconds(),
		"last_utterance_bytes":   current.UtteranceBytes,
	})
}

func (s *Server) handleStateWS(conn *websocket.Conn) {
	client := hub.NewClient(s.stateHub, conn)

	// New subscribers get the current snapshot before the stream.
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	s.stateHub.BroadcastJSON(state)

	client.Run()
}

func (s *Server) handleLevelsWS(conn *websocket.Conn) {
	hub.NewClient(s.levelHub, conn).Run()
}

func (s *Server) handleTranscriptWS(conn *websocket.Conn) {
	hub.NewClient(s.transcriptHub, conn).Run()
}
