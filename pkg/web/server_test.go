package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
)

func getJSON(t *testing.T, s *Server, path string) map[string]any {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid JSON from %s: %v", path, err)
	}
	return out
}

func TestServer_Status(t *testing.T) {
	s := NewServer("0")

	s.UpdateState(func(v *CallView) {
		v.CallState = "active"
		v.AvatarState = "speaking"
		v.Turn = 3
		v.InterviewID = "int-42"
	})

	out := getJSON(t, s, "/api/status")

	callView, ok := out["call"].(map[string]any)
	if !ok {
		t.Fatalf("status missing call view: %v", out)
	}
	if callView["call_state"] != "active" {
		t.Errorf("call_state = %v, want active", callView["call_state"])
	}
	if callView["avatar_state"] != "speaking" {
		t.Errorf("avatar_state = %v, want speaking", callView["avatar_state"])
	}
	if callView["turn"] != float64(3) {
		t.Errorf("turn = %v, want 3", callView["turn"])
	}
}

func TestServer_Transcript(t *testing.T) {
	s := NewServer("0")

	s.AddTranscript("interviewer", "Tell me about yourself.")
	s.AddTranscript("candidate", "I build audio pipelines.")
	s.AddTranscript("candidate", "") // empty lines are dropped

	out := getJSON(t, s, "/api/transcript")

	if out["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", out["count"])
	}
	entries := out["entries"].([]any)
	first := entries[0].(map[string]any)
	if first["role"] != "interviewer" {
		t.Errorf("first role = %v, want interviewer", first["role"])
	}
	second := entries[1].(map[string]any)
	if second["text"] != "I build audio pipelines." {
		t.Errorf("second text = %v", second["text"])
	}
}

func TestServer_TranscriptCapped(t *testing.T) {
	s := NewServer("0")

	for i := 0; i < 150; i++ {
		s.AddTranscript("candidate", "line")
	}

	out := getJSON(t, s, "/api/transcript")
	if out["count"] != float64(100) {
		t.Errorf("count = %v, want 100", out["count"])
	}
}

func TestServer_MetricsWithoutController(t *testing.T) {
	s := NewServer("0")

	out := getJSON(t, s, "/api/metrics")
	if out["turns"] != float64(0) {
		t.Errorf("turns = %v, want 0", out["turns"])
	}
}
