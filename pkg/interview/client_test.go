package interview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Start(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/interview/start-with-audio" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		var req StartRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.JobID != "job-7" || req.CandidateID != "cand-3" {
			t.Errorf("Unexpected request: %+v", req)
		}

		json.NewEncoder(w).Encode(Session{
			InterviewID:  "int-1",
			Status:       "active",
			CurrentStage: "warmup",
			Question:     "Tell me about yourself.",
			MessageCount: 1,
			AudioURL:     "/audio/int-1.mp3",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/ai/interview")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	session, err := c.Start(context.Background(), StartRequest{
		JobID:       "job-7",
		CandidateID: "cand-3",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if session.InterviewID != "int-1" {
		t.Errorf("Expected interview ID int-1, got %s", session.InterviewID)
	}
	if session.Question != "Tell me about yourself." {
		t.Errorf("Unexpected question: %q", session.Question)
	}
	if session.AudioURL != "/audio/int-1.mp3" {
		t.Errorf("Unexpected audio URL: %q", session.AudioURL)
	}
}

func TestClient_SubmitUtterance(t *testing.T) {
	audio := []byte("fake-ogg-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/interview/int-1/submit-audio" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Unexpected auth header: %q", auth)
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("Missing audio part: %v", err)
		}
		defer file.Close()

		if header.Filename != "utterance.ogg" {
			t.Errorf("Unexpected filename: %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/ogg; codecs=opus" {
			t.Errorf("Unexpected part content type: %s", ct)
		}
		got, _ := io.ReadAll(file)
		if string(got) != string(audio) {
			t.Errorf("Audio bytes mismatch: got %d bytes", len(got))
		}

		json.NewEncoder(w).Encode(TurnResult{
			InterviewID:  "int-1",
			Transcript:   "I enjoy distributed systems.",
			Status:       "active",
			CurrentStage: "technical",
			NextQuestion: "Describe a race condition you debugged.",
			Evaluation:   &Evaluation{Confidence: 0.8, Technical: 0.7},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/ai/interview", WithToken("tok"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := c.SubmitUtterance(context.Background(), "int-1", audio, "audio/ogg; codecs=opus")
	if err != nil {
		t.Fatalf("SubmitUtterance failed: %v", err)
	}

	if result.Transcript != "I enjoy distributed systems." {
		t.Errorf("Unexpected transcript: %q", result.Transcript)
	}
	if result.NextQuestion != "Describe a race condition you debugged." {
		t.Errorf("Unexpected next question: %q", result.NextQuestion)
	}
	if result.IsComplete {
		t.Error("Expected interview to continue")
	}
	if result.Evaluation == nil || result.Evaluation.Technical != 0.7 {
		t.Errorf("Unexpected evaluation: %+v", result.Evaluation)
	}
}

func TestClient_SubmitUtterance_Empty(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.SubmitUtterance(context.Background(), "int-1", nil, "audio/wav"); !errors.Is(err, ErrEmptyUtterance) {
		t.Errorf("Expected ErrEmptyUtterance, got %v", err)
	}
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/interview/int-1/complete" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Summary{
			InterviewID:    "int-1",
			Status:         "complete",
			Recommendation: "hire",
			Scores: Scores{
				Confidence:        0.8,
				Technical:         0.75,
				Clarity:           0.7,
				QuestionsAnswered: 5,
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/ai/interview")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	summary, err := c.Complete(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if summary.Recommendation != "hire" {
		t.Errorf("Unexpected recommendation: %q", summary.Recommendation)
	}
	if summary.Scores.QuestionsAnswered != 5 {
		t.Errorf("Unexpected scores: %+v", summary.Scores)
	}
}

func TestClient_State(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/ai/interview/int-1/state" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(State{
			InterviewID:    "int-1",
			CurrentStage:   "deep_dive",
			QuestionsAsked: 4,
			AvgConfidence:  0.72,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/ai/interview")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	state, err := c.State(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.CurrentStage != "deep_dive" || state.QuestionsAsked != 4 {
		t.Errorf("Unexpected state: %+v", state)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		detail    string
		sentinel  error
		retryable bool
	}{
		{"not found", 404, "Interview session not found", ErrSessionNotFound, false},
		{"already complete", 400, "Interview is already complete", ErrAlreadyComplete, false},
		{"server error", 500, "Failed to process response", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"detail": tt.detail})
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL)
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}

			_, err = c.SubmitUtterance(context.Background(), "int-1", []byte("x"), "audio/wav")
			if err == nil {
				t.Fatal("Expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if !strings.Contains(apiErr.Message, tt.detail) {
				t.Errorf("Expected detail %q in %q", tt.detail, apiErr.Message)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected errors.Is(%v)", tt.sentinel)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("Expected ErrNoBaseURL, got %v", err)
	}
}

func TestClient_ResolveAudioURL(t *testing.T) {
	c, err := NewClient("http://svc.local:8001/ai/interview")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if got := c.ResolveAudioURL("/audio/int-1.mp3"); got != "http://svc.local:8001/audio/int-1.mp3" {
		t.Errorf("Unexpected resolved URL: %s", got)
	}
	if got := c.ResolveAudioURL("https://cdn.example/int-1.mp3"); got != "https://cdn.example/int-1.mp3" {
		t.Errorf("Absolute URL should pass through, got %s", got)
	}
	if got := c.ResolveAudioURL(""); got != "" {
		t.Errorf("Empty ref should pass through, got %q", got)
	}
}

func TestMock_ScriptedTurns(t *testing.T) {
	m := NewMock("Q1", "Q2")

	session, err := m.Start(context.Background(), StartRequest{JobID: "j"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if session.Question != "Q1" {
		t.Errorf("Expected Q1, got %q", session.Question)
	}

	turn, err := m.SubmitUtterance(context.Background(), session.InterviewID, []byte("a"), "audio/wav")
	if err != nil {
		t.Fatalf("SubmitUtterance failed: %v", err)
	}
	if turn.NextQuestion != "Q2" || turn.IsComplete {
		t.Errorf("Expected Q2 and continuing, got %+v", turn)
	}

	turn, err = m.SubmitUtterance(context.Background(), session.InterviewID, []byte("b"), "audio/wav")
	if err != nil {
		t.Fatalf("SubmitUtterance failed: %v", err)
	}
	if !turn.IsComplete {
		t.Error("Expected completion after last prompt")
	}

	if m.CallCount("SubmitUtterance") != 2 {
		t.Errorf("Expected 2 submissions, got %d", m.CallCount("SubmitUtterance"))
	}
}
