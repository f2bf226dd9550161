package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skywatch/skywatch/internal/skywatch/cache"
)

// sentinel errors returned by Manager methods.
var (
	// ErrSessionExpired is returned by Send when the visitor's session still
	// carries a chat token but the cache entry behind it is gone. No new
	// conversation is started on this path; the caller must send another
	// message to start over.
	ErrSessionExpired = errors.New("chat: session expired")

	// ErrContentDeclined is returned (wrapped) by chat backends when the
	// upstream model refuses the message on content-policy grounds. It is a
	// normal conversational outcome, not a backend failure.
	ErrContentDeclined = errors.New("chat: content declined")
)

// DefaultTTL is the rolling lifetime of a conversation's cache entry. Every
// successful send resets the entry's expiry to this window.
const DefaultTTL = time.Hour

// Session is the visitor's cookie-backed state as seen by the Manager: at
// most one chat token. Expiry is not handled here; the cookie lifetime and
// the cache TTL are independent clocks.
type Session interface {
	// Token returns the chat token bound to this session, if any.
	Token() (string, bool)
	// Bind writes or overwrites the session's chat token.
	Bind(token string)
}

// Chat is one live conversation handle obtained from a Backend.
type Chat interface {
	// SendMessage forwards text to the model and returns the reply text.
	SendMessage(ctx context.Context, text string) (string, error)
	// History returns the conversation's turns so far, in chronological
	// order, including the turns produced by SendMessage.
	History() History
}

// Backend creates conversations. A nil or empty history starts a brand-new
// conversation; a non-empty history resumes one. The returned token is
// freshly minted on every call — callers resuming an existing conversation
// keep their original token and discard the new one.
type Backend interface {
	CreateChat(ctx context.Context, history History) (token string, chat Chat, err error)
}

// Manager orchestrates the conversational session flow: resolve the
// visitor's token, load and decode cached history, talk to the chat backend,
// and persist the updated history with a refreshed TTL.
type Manager struct {
	store   cache.Store
	backend Backend
	ttl     time.Duration
}

// NewManager creates a Manager. Pass ttl == 0 to use DefaultTTL.
func NewManager(store cache.Store, backend Backend, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, backend: backend, ttl: ttl}
}

// Send runs one conversational exchange for the visitor and returns the
// model's reply text.
//
// The session states are evaluated in order:
//  1. no token        → start a fresh conversation, minting a new token
//  2. token, cache miss → ErrSessionExpired; nothing is written
//  3. token, cache hit  → decode and resume; a decode failure propagates
//
// On success the updated history is persisted under the token with a fresh
// TTL and the token is bound into the session. A declined or failed send
// persists nothing, so the cached history remains whatever it was before.
func (m *Manager) Send(ctx context.Context, sess Session, message string) (string, error) {
	var (
		token  string
		handle Chat
	)

	if tok, ok := sess.Token(); ok {
		payload, present, err := m.store.Get(ctx, tok)
		if err != nil {
			return "", fmt.Errorf("chat: load history for %q: %w", tok, err)
		}
		if !present || len(payload) == 0 {
			return "", ErrSessionExpired
		}

		history, err := DecodeHistory(payload)
		if err != nil {
			return "", fmt.Errorf("chat: history for %q: %w", tok, err)
		}

		token = tok
		if _, handle, err = m.backend.CreateChat(ctx, history); err != nil {
			return "", fmt.Errorf("chat: resume conversation %q: %w", tok, err)
		}
	} else {
		var err error
		if token, handle, err = m.backend.CreateChat(ctx, nil); err != nil {
			return "", fmt.Errorf("chat: create conversation: %w", err)
		}
	}

	reply, err := handle.SendMessage(ctx, message)
	if err != nil {
		return "", err
	}

	encoded, err := EncodeHistory(handle.History())
	if err != nil {
		return "", err
	}
	if err := m.store.SetWithTTL(ctx, token, encoded, m.ttl); err != nil {
		return "", fmt.Errorf("chat: persist history for %q: %w", token, err)
	}
	sess.Bind(token)

	return reply, nil
}

// List reconstructs the visitor's current conversation from the cache. A
// session without a token, or a token whose entry has expired, yields an
// empty history; a present entry that fails to decode propagates the error.
func (m *Manager) List(ctx context.Context, sess Session) (History, error) {
	tok, ok := sess.Token()
	if !ok {
		return nil, nil
	}

	payload, present, err := m.store.Get(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("chat: load history for %q: %w", tok, err)
	}
	if !present || len(payload) == 0 {
		return nil, nil
	}

	history, err := DecodeHistory(payload)
	if err != nil {
		return nil, fmt.Errorf("chat: history for %q: %w", tok, err)
	}
	return history, nil
}

// Summarize runs a one-shot, stateless exchange: a fresh conversation whose
// handle is discarded after a single message. Nothing is persisted and no
// session is involved.
func (m *Manager) Summarize(ctx context.Context, url string) (string, error) {
	_, handle, err := m.backend.CreateChat(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("chat: create conversation: %w", err)
	}
	return handle.SendMessage(ctx, fmt.Sprintf("Please summarize this URL in 50 words: %s", url))
}
