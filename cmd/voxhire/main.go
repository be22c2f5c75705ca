// Command voxhire runs a voice interview call from the terminal.
// It captures the candidate's microphone, detects utterance boundaries,
// submits each answer to the interview service, and plays the
// interviewer's next question out loud.
//
// Usage:
//
//	go run ./cmd/voxhire --job job-123 --candidate cand-456 --name "Ada Lovelace"
//
// Environment variables:
//
//	VOXHIRE_SERVICE_URL   - Interview service base URL (default http://localhost:8001/ai/interview)
//	VOXHIRE_SERVICE_TOKEN - Bearer token for the interview service
//	ELEVENLABS_API_KEY    - Enables ElevenLabs streaming TTS for prompts without server audio
//	ELEVENLABS_VOICE_ID   - Voice for ElevenLabs synthesis
//	OPENAI_API_KEY        - Enables the OpenAI TTS fallback
//	VOXHIRE_WEB_PORT      - Dashboard port (default 8090)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/log"
	"github.com/voxhire/voxhire/pkg/audioio"
	"github.com/voxhire/voxhire/pkg/call"
	"github.com/voxhire/voxhire/pkg/capture"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/lipsync"
	"github.com/voxhire/voxhire/pkg/playback"
	"github.com/voxhire/voxhire/pkg/tts"
	"github.com/voxhire/voxhire/pkg/web"
)

func main() {
	jobID := flag.String("job", "", "Job posting identifier (required)")
	candidateID := flag.String("candidate", "", "Candidate identifier (required)")
	name := flag.String("name", "", "Candidate display name")
	noWeb := flag.Bool("no-web", false, "Disable the presentation dashboard")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *jobID == "" || *candidateID == "" {
		fmt.Fprintln(os.Stderr, "Error: --job and --candidate are required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Load()
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	if err := run(cfg, *jobID, *candidateID, *name, !*noWeb); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, jobID, candidateID, name string, webEnabled bool) error {
	// Microphone: 16kHz mono, Opus-friendly.
	sourceCfg := audioio.DefaultConfig()
	sourceCfg.Backend = audioio.Backend(cfg.AudioBackend)
	sourceCfg.Device = cfg.AudioDevice
	source, err := audioio.NewSource(sourceCfg, log.L())
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer source.Close()

	// Speaker: 24kHz matches the TTS output; other formats are
	// converted on the way in.
	sinkCfg := audioio.DefaultConfig()
	sinkCfg.Backend = audioio.Backend(cfg.AudioBackend)
	sinkCfg.SampleRate = 24000
	sink, err := audioio.NewSink(sinkCfg, log.L())
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	defer sink.Close()

	engine, err := capture.NewEngine(captureConfig(cfg), source, capture.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("create capture engine: %w", err)
	}
	defer engine.Close()

	player := playback.NewPlayer(sink, playback.WithPlayerLogger(log.L()))
	analyser := lipsync.NewAnalyser()

	svc, err := interview.NewClient(cfg.ServiceURL,
		interview.WithToken(cfg.ServiceToken),
		interview.WithClientLogger(log.L()),
	)
	if err != nil {
		return fmt.Errorf("create interview client: %w", err)
	}

	opts := []call.Option{
		call.WithAnalyser(analyser),
		call.WithLogger(log.L()),
	}
	if synth := buildSynthesizer(cfg); synth != nil {
		opts = append(opts, call.WithSynthesizer(synth))
	}

	ctrl, err := call.NewController(svc, engine, player, call.DefaultConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create call controller: %w", err)
	}

	if webEnabled && cfg.WebPort != "" {
		srv := web.NewServer(cfg.WebPort)
		srv.Bind(ctrl)
		srv.StartAsync()
		defer srv.Shutdown()
		fmt.Printf("📺 Dashboard: http://localhost:%s\n", cfg.WebPort)
	} else {
		ctrl.OnPrompt(func(turn int, text string) {
			if stage := ctrl.Stage(); stage != "" {
				fmt.Printf("\n🗣  Interviewer (turn %d, %s): %s\n", turn, stage, text)
			} else {
				fmt.Printf("\n🗣  Interviewer (turn %d): %s\n", turn, text)
			}
		})
		ctrl.OnTranscript(func(text string) {
			fmt.Printf("🎤 You: %s\n", text)
		})
	}

	done := make(chan *interview.Summary, 1)
	ctrl.OnComplete(func(summary *interview.Summary) {
		done <- summary
	})
	ctrl.OnError(func(err error) {
		log.Warn("call error", "error", err)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("📞 Starting interview call (Ctrl+C to hang up)")
	if err := ctrl.Start(ctx, interview.StartRequest{
		JobID:         jobID,
		CandidateID:   candidateID,
		CandidateName: name,
	}); err != nil {
		return fmt.Errorf("start call: %w", err)
	}

	select {
	case summary := <-done:
		printSummary(summary)
	case <-ctx.Done():
		fmt.Println("\n🛑 Hanging up")
		ctrl.End()
		select {
		case summary := <-done:
			printSummary(summary)
		default:
		}
	}
	return nil
}

// captureConfig applies environment overrides on top of the detection
// defaults.
func captureConfig(cfg config.Config) capture.Config {
	c := capture.DefaultConfig()
	if cfg.VolumeThreshold > 0 {
		c.VolumeThreshold = cfg.VolumeThreshold
	}
	if cfg.SilenceDuration > 0 {
		c.SilenceDuration = cfg.SilenceDuration
	}
	if cfg.MinSpeechDuration > 0 {
		c.MinSpeechDuration = cfg.MinSpeechDuration
	}
	if cfg.MinRecordingTime > 0 {
		c.MinRecordingTime = cfg.MinRecordingTime
	}
	if cfg.FinalizeDebounce > 0 {
		c.FinalizeDebounce = cfg.FinalizeDebounce
	}
	return c
}

// buildSynthesizer assembles the TTS fallback chain from whichever
// provider keys are configured. Returns nil when none are, in which
// case prompts without server audio stay silent on screen only.
func buildSynthesizer(cfg config.Config) tts.Provider {
	var providers []tts.Provider

	if cfg.ElevenLabsKey != "" {
		p, err := tts.NewElevenLabsWS(
			tts.WithAPIKey(cfg.ElevenLabsKey),
			tts.WithVoice(cfg.ElevenLabsVoice),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			log.Warn("elevenlabs unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if cfg.OpenAIKey != "" {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIKey),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			log.Warn("openai tts unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	switch len(providers) {
	case 0:
		return nil
	case 1:
		return providers[0]
	default:
		chain, err := tts.NewChainWithLogger(log.L(), providers...)
		if err != nil {
			return providers[0]
		}
		return chain
	}
}

func printSummary(summary *interview.Summary) {
	if summary == nil {
		return
	}
	fmt.Println("\n✅ Interview complete")
	fmt.Printf("   Interview: %s\n", summary.InterviewID)
	fmt.Printf("   Status:    %s\n", summary.Status)
	if summary.Recommendation != "" {
		fmt.Printf("   Outcome:   %s\n", summary.Recommendation)
	}
	fmt.Printf("   Answered:  %d questions\n", summary.Scores.QuestionsAnswered)
	if summary.Scores.Confidence > 0 {
		fmt.Printf("   Scores:    confidence %.1f, technical %.1f, clarity %.1f\n",
			summary.Scores.Confidence, summary.Scores.Technical, summary.Scores.Clarity)
	}
}
