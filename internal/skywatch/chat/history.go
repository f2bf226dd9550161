// Package chat implements the conversational session core: the history
// model and codec, and the manager that turns stateless HTTP requests into
// a continuous multi-turn conversation backed by the shared cache.
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHistory is returned by DecodeHistory when the stored bytes do
// not correspond to a previously encoded history. It signals data corruption
// and must never be conflated with an empty history or a missing cache key.
var ErrMalformedHistory = errors.New("chat: malformed stored history")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one exchange unit in a conversation: a single message from either
// the user or the model, composed of ordered text fragments.
type Turn struct {
	Role  Role     `json:"role"`
	Parts []string `json:"parts"`
}

// Content renders the turn's fragments as a single string, joined by one
// space.
func (t Turn) Content() string {
	return strings.Join(t.Parts, " ")
}

// History is an ordered sequence of turns; insertion order is chronological
// order. A nil or empty history represents a brand-new conversation.
type History []Turn

// EncodeHistory serializes h into an opaque byte blob suitable for cache
// storage. Encoding is deterministic and lossless for a given sequence of
// turns.
func EncodeHistory(h History) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("chat: encode history: %w", err)
	}
	return data, nil
}

// DecodeHistory parses a blob previously produced by EncodeHistory. Any
// structural anomaly — invalid JSON, a non-array document, unknown fields,
// an unrecognised role — yields an error wrapping ErrMalformedHistory rather
// than a silently truncated or empty result.
func DecodeHistory(data []byte) (History, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var h History
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHistory, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after history document", ErrMalformedHistory)
	}

	for i, turn := range h {
		if turn.Role != RoleUser && turn.Role != RoleModel {
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrMalformedHistory, i, turn.Role)
		}
	}
	return h, nil
}
