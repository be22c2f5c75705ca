// Package web serves the avatar presentation dashboard: a live view of
// the call state, lip-sync amplitude, and the running transcript. It
// is a pure consumer of orchestrator events; no decisions are made
// here.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voxhire/voxhire/pkg/call"
	"github.com/voxhire/voxhire/pkg/hub"
)

// levelInterval is the amplitude broadcast rate. 30Hz is enough for a
// smooth mouth animation.
const levelInterval = 33 * time.Millisecond

// CallView is the dashboard's snapshot of the call.
type CallView struct {
	CallState   string `json:"call_state"`
	AvatarState string `json:"avatar_state"`
	Turn        int    `json:"turn"`
	Stage       string `json:"stage"`
	InterviewID string `json:"interview_id"`
	Prompt      string `json:"prompt"`
}

// LevelUpdate carries the live amplitude signals.
type LevelUpdate struct {
	Mic      float64 `json:"mic"`
	Playback float64 `json:"playback"`
}

// TranscriptEntry is one line of the interview transcript.
type TranscriptEntry struct {
	Time string `json:"time"`
	Role string `json:"role"` // interviewer, candidate
	Text string `json:"text"`
}

// Server is the dashboard web server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	stateMu sync.RWMutex
	state   CallView

	transcriptMu sync.RWMutex
	transcript   []TranscriptEntry

	stateHub      *hub.Hub
	levelHub      *hub.Hub
	transcriptHub *hub.Hub

	metrics *call.MetricsCollector

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer creates a dashboard server listening on the given port.
func NewServer(port string) *Server {
	s := &Server{
		port:          port,
		logger:        slog.Default().With("component", "web"),
		transcript:    make([]TranscriptEntry, 0, 100),
		stateHub:      hub.New("state"),
		levelHub:      hub.New("levels"),
		transcriptHub: hub.New("transcript"),
		stop:          make(chan struct{}),
		state:         CallView{CallState: "waiting", AvatarState: "idle"},
	}

	app := fiber.New(fiber.Config{
		AppName:               "Voxhire Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/levels", websocket.New(s.handleLevelsWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))

	s.app = app
	return s
}

// Bind subscribes the dashboard to a call controller's events and
// starts the amplitude pump.
func (s *Server) Bind(ctrl *call.Controller) {
	s.metrics = ctrl.Metrics()

	ctrl.OnStateChange(func(state call.CallState, avatar call.AvatarState) {
		s.UpdateState(func(v *CallView) {
			v.CallState = state.String()
			v.AvatarState = avatar.String()
			v.Turn = ctrl.Turn()
			v.Stage = ctrl.Stage()
			v.InterviewID = ctrl.InterviewID()
		})
	})
	ctrl.OnPrompt(func(turn int, text string) {
		s.AddTranscript("interviewer", text)
		s.UpdateState(func(v *CallView) {
			v.Turn = turn
			v.Stage = ctrl.Stage()
			v.Prompt = text
		})
	})
	ctrl.OnTranscript(func(text string) {
		s.AddTranscript("candidate", text)
	})

	go s.levelPump(ctrl)
}

// Start runs the web server. Blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.stateHub.Run()
	go s.levelHub.Run()
	go s.transcriptHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync runs the web server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server failed", "error", err)
		}
	}()
}

// UpdateState applies a mutation to the call view and broadcasts the
// result.
func (s *Server) UpdateState(update func(*CallView)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	s.stateHub.BroadcastJSON(state)
}

// AddTranscript appends a transcript line and broadcasts it.
func (s *Server) AddTranscript(role, text string) {
	if text == "" {
		return
	}
	entry := TranscriptEntry{
		Time: time.Now().Format("15:04:05"),
		Role: role,
		Text: text,
	}

	s.transcriptMu.Lock()
	s.transcript = append(s.transcript, entry)
	if len(s.transcript) > 100 {
		s.transcript = s.transcript[1:]
	}
	s.transcriptMu.Unlock()

	s.transcriptHub.BroadcastJSON(entry)
}

// levelPump broadcasts amplitude levels while the call runs.
func (s *Server) levelPump(ctrl *call.Controller) {
	ticker := time.NewTicker(levelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if ctrl.State() == call.StateEnded {
			s.levelHub.BroadcastJSON(LevelUpdate{})
			return
		}
		if s.levelHub.ClientCount() == 0 {
			continue
		}
		s.levelHub.BroadcastJSON(LevelUpdate{
			Mic:      ctrl.MicLevel(),
			Playback: ctrl.PlaybackLevel(),
		})
	}
}

// Shutdown stops the server and all hubs.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.stateHub.Stop()
	s.levelHub.Stop()
	s.transcriptHub.Stop()
	return s.app.Shutdown()
}
