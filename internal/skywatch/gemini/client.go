// Package gemini implements the chat.Backend interface on top of the Google
// Generative Language REST API (generateContent). The client is hand-rolled
// over net/http; only the handful of wire fields this service needs are
// modelled.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skywatch/skywatch/common/redact"
	"github.com/skywatch/skywatch/internal/skywatch/chat"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 30 * time.Second
)

// Config configures the Gemini client.
type Config struct {
	// APIKey authenticates against the Generative Language API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for tests and proxies.
	// Defaults to the public v1beta endpoint when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gemini-1.5-flash.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// Client creates conversations against the Gemini API. It is safe for
// concurrent use; each Conversation it hands out is not.
type Client struct {
	cfg    Config
	client *http.Client
}

// New returns a Client with defaults applied.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateChat mints a fresh chat token and returns a Conversation seeded with
// history. No network call happens until the first SendMessage. Callers
// resuming an existing conversation keep their original token and discard
// the returned one.
func (c *Client) CreateChat(_ context.Context, history chat.History) (string, chat.Chat, error) {
	seeded := make(chat.History, len(history))
	copy(seeded, history)
	return uuid.NewString(), &Conversation{client: c, history: seeded}, nil
}

// Conversation is one live chat session. SendMessage replays the full
// accumulated history on every call, which is how the generateContent API
// models multi-turn conversations.
type Conversation struct {
	client  *Client
	mu      sync.Mutex
	history chat.History
}

// --- minimal Gemini wire types ---

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Role  string    `json:"role"`
	Parts []genPart `json:"parts"`
}

type genRequest struct {
	Contents []genContent `json:"contents"`
}

type genResponse struct {
	Candidates []struct {
		Content      genContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// SendMessage forwards text to the model and returns the reply text. A
// safety block surfaces as an error wrapping chat.ErrContentDeclined; the
// conversation history is only extended when the exchange succeeds.
func (cv *Conversation) SendMessage(ctx context.Context, text string) (string, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	contents := make([]genContent, 0, len(cv.history)+1)
	for _, turn := range cv.history {
		parts := make([]genPart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genPart{Text: p})
		}
		contents = append(contents, genContent{Role: string(turn.Role), Parts: parts})
	}
	contents = append(contents, genContent{
		Role:  string(chat.RoleUser),
		Parts: []genPart{{Text: text}},
	})

	reply, err := cv.client.generate(ctx, genRequest{Contents: contents})
	if err != nil {
		return "", err
	}

	cv.history = append(cv.history,
		chat.Turn{Role: chat.RoleUser, Parts: []string{text}},
		chat.Turn{Role: chat.RoleModel, Parts: reply},
	)
	return strings.Join(reply, " "), nil
}

// History returns a copy of the conversation's turns so far.
func (cv *Conversation) History() chat.History {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	out := make(chat.History, len(cv.history))
	copy(out, cv.history)
	return out
}

// generate performs one generateContent call and returns the reply's text
// fragments.
func (c *Client) generate(ctx context.Context, body genRequest) ([]string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// A url.Error carries the full request URL, key included.
		return nil, fmt.Errorf("gemini: http request: %w", redact.Error(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response body: %w", err)
	}

	var genResp genResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("gemini: decode API response (HTTP %d): %w", resp.StatusCode, err)
	}

	if genResp.Error != nil {
		return nil, fmt.Errorf("gemini: API error (%s): %s", genResp.Error.Status, genResp.Error.Message)
	}
	if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", chat.ErrContentDeclined, genResp.PromptFeedback.BlockReason)
	}
	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates returned (HTTP %d)", resp.StatusCode)
	}

	cand := genResp.Candidates[0]
	switch cand.FinishReason {
	case "", "STOP", "MAX_TOKENS":
		// Normal completion.
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return nil, fmt.Errorf("%w: candidate stopped (%s)", chat.ErrContentDeclined, cand.FinishReason)
	default:
		return nil, fmt.Errorf("gemini: unexpected finish reason %q", cand.FinishReason)
	}

	texts := make([]string, 0, len(cand.Content.Parts))
	for _, p := range cand.Content.Parts {
		texts = append(texts, p.Text)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("gemini: candidate has no text parts")
	}
	return texts, nil
}
