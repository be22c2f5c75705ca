package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/voxhire/voxhire/internal/httpc"
)

const defaultTimeout = 60 * time.Second

// Client talks to the interview service over HTTP. Submissions carry
// the audio as a multipart upload; everything else is JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets a bearer token for every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.With("component", "interview") }
}

// NewClient creates an interview service client for the given base URL,
// e.g. "http://localhost:8001/ai/interview".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.NewClient(defaultTimeout),
		logger:  slog.Default().With("component", "interview"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start opens a new session. The service synthesizes speech for the
// first prompt when it can; AudioURL is empty when it could not.
func (c *Client) Start(ctx context.Context, req StartRequest) (*Session, error) {
	var session Session
	if err := c.postJSON(ctx, "/start-with-audio", req, &session); err != nil {
		return nil, err
	}

	c.logger.Info("interview started",
		"interview_id", session.InterviewID,
		"stage", session.CurrentStage,
		"has_audio", session.AudioURL != "",
	)
	return &session, nil
}

// SubmitUtterance uploads one finalized audio segment. The service
// transcribes it, advances the interview, and returns the next prompt
// or completion.
func (c *Client) SubmitUtterance(ctx context.Context, interviewID string, audio []byte, mimeType string) (*TurnResult, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyUtterance
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename="%s"`, utteranceFilename(mimeType)))
	header.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("interview: build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("interview: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("interview: build upload: %w", err)
	}

	endpoint := "/" + interviewID + "/submit-audio"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("interview: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interview: submit utterance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp, endpoint)
	}

	var result TurnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("interview: decode response: %w", err)
	}

	c.logger.Info("utterance submitted",
		"interview_id", interviewID,
		"bytes", len(audio),
		"stage", result.CurrentStage,
		"complete", result.IsComplete,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &result, nil
}

// Complete ends the session and returns the final recommendation and
// scores. Safe to call on an already-finished session.
func (c *Client) Complete(ctx context.Context, interviewID string) (*Summary, error) {
	var summary Summary
	if err := c.postJSON(ctx, "/"+interviewID+"/complete", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// State fetches the current snapshot of a session.
func (c *Client) State(ctx context.Context, interviewID string) (*State, error) {
	endpoint := "/" + interviewID + "/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("interview: create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interview: fetch state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp, endpoint)
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("interview: decode response: %w", err)
	}
	return &state, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("interview: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("interview: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("interview: %s: %w", strings.TrimPrefix(endpoint, "/"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("interview: decode response: %w", err)
	}
	return nil
}

// ResolveAudioURL resolves a prompt audio reference against the
// service host. The service returns paths like "/audio/{id}.mp3".
func (c *Client) ResolveAudioURL(ref string) string {
	if ref == "" || strings.Contains(ref, "://") {
		return ref
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return u.Scheme + "://" + u.Host + rel.String()
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) parseError(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Detail string `json:"detail"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		message = errResp.Detail
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Endpoint:   endpoint,
	}
}

func utteranceFilename(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return "utterance.ogg"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return "utterance.wav"
	case strings.HasPrefix(mimeType, "audio/webm"):
		return "utterance.webm"
	}
	return "utterance.bin"
}

var _ Service = (*Client)(nil)
