// Package httpapi exposes the service's HTTP surface: the chat endpoints,
// the read-only data-API proxies, admission control, the signed session
// cookie, and static SPA serving.
//
// Every conversational outcome — expired session, declined content, backend
// outage — is translated into a fixed, safe JSON message at this boundary;
// nothing internal reaches the caller.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/sessions"

	"github.com/skywatch/skywatch/common/trace"
	"github.com/skywatch/skywatch/internal/skywatch/chat"
)

// Fixed user-facing strings. The internal-error wording (typo included)
// matches what the frontend displays verbatim.
const (
	msgSessionExpired = "Your session has expired. Please try again later."
	msgDeclined       = "I cannot answer that."
	msgOutage         = "It seems we're out of service at the moment, try again later."
	msgInternal       = "an internal server error occured, please try again later"
	msgInternalShort  = "an internal server error occured, try again later"
)

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 64 * 1024 // 64 KiB

// Conversations is the surface the chat endpoints need from the
// conversation manager.
type Conversations interface {
	Send(ctx context.Context, sess chat.Session, message string) (string, error)
	List(ctx context.Context, sess chat.Session) (chat.History, error)
	Summarize(ctx context.Context, url string) (string, error)
}

// SpaceData is the surface the launch/event/news proxies need.
type SpaceData interface {
	Launches(ctx context.Context) (json.RawMessage, error)
	Events(ctx context.Context) (json.RawMessage, error)
	News(ctx context.Context) (json.RawMessage, error)
}

// NASAData is the surface the APOD and fireball-map proxies need.
type NASAData interface {
	PictureOfTheDay(ctx context.Context) (json.RawMessage, error)
	FireballMap(ctx context.Context) (string, error)
}

// Config holds options for creating a Server.
type Config struct {
	// SecretKey signs the session cookie. Required.
	SecretKey string

	// StaticDir is the built frontend directory. When empty, no static
	// files are served and unknown paths return 404.
	StaticDir string

	// SessionTTL is the cookie lifetime, refreshed on every request.
	// Defaults to one hour when zero.
	SessionTTL time.Duration

	// DefaultPerMinute and DefaultPerSecond are the per-caller admission
	// limits applied to every route. Defaults: 600/min and 10/s.
	DefaultPerMinute int
	DefaultPerSecond int

	// ChatSendEvery is the minimum spacing between chat sends per caller.
	// Defaults to 4 s.
	ChatSendEvery time.Duration

	// FireballEvery is the minimum spacing between fireball-map fetches per
	// caller. Defaults to 10 s.
	FireballEvery time.Duration
}

// Server is the HTTP handler for the whole service.
type Server struct {
	conv      Conversations
	space     SpaceData
	nasa      NASAData
	cookies   *sessions.CookieStore
	staticDir string

	sessionTTL time.Duration

	perMinute *rateLimiter
	perSecond *rateLimiter
	chatSend  *rateLimiter
	fireball  *rateLimiter

	mux *http.ServeMux
}

// New creates a Server. conv is required; space and nasa may be nil in
// tests that only exercise the chat surface, in which case the data routes
// report the generic internal error.
func New(cfg Config, conv Conversations, space SpaceData, nasa NASAData) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.DefaultPerMinute <= 0 {
		cfg.DefaultPerMinute = 600
	}
	if cfg.DefaultPerSecond <= 0 {
		cfg.DefaultPerSecond = 10
	}
	if cfg.ChatSendEvery <= 0 {
		cfg.ChatSendEvery = 4 * time.Second
	}
	if cfg.FireballEvery <= 0 {
		cfg.FireballEvery = 10 * time.Second
	}

	cookies := sessions.NewCookieStore([]byte(cfg.SecretKey))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		conv:       conv,
		space:      space,
		nasa:       nasa,
		cookies:    cookies,
		staticDir:  cfg.StaticDir,
		sessionTTL: cfg.SessionTTL,
		perMinute:  newRateLimiter(cfg.DefaultPerMinute, time.Minute),
		perSecond:  newRateLimiter(cfg.DefaultPerSecond, time.Second),
		chatSend:   newRateLimiter(1, cfg.ChatSendEvery),
		fireball:   newRateLimiter(1, cfg.FireballEvery),
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/ping", s.handlePing)
	s.mux.HandleFunc("/api/launches", s.proxyJSON("launches", s.launches))
	s.mux.HandleFunc("/api/events", s.proxyJSON("events", s.events))
	s.mux.HandleFunc("/api/news", s.proxyJSON("news", s.news))
	s.mux.HandleFunc("/api/potd", s.proxyJSON("potd", s.potd))
	s.mux.HandleFunc("/api/fireball_map", s.limited(s.fireball, s.handleFireballMap))
	s.mux.HandleFunc("/api/chat/send", s.limited(s.chatSend, s.handleChatSend))
	s.mux.HandleFunc("/api/chat/list", s.handleChatList)
	s.mux.HandleFunc("/api/summarize", s.handleSummarize)
	s.mux.HandleFunc("/", s.handleStatic)

	return s
}

// ServeHTTP assigns a request ID, applies the default admission limits,
// refreshes the session cookie, and dispatches to the route handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(trace.WithID(r.Context(), trace.NewID()))

	caller := clientIP(r)
	for _, l := range []*rateLimiter{s.perSecond, s.perMinute} {
		if ok, wait := l.Allow(caller); !ok {
			writeRateLimited(w, wait)
			return
		}
	}

	// The cookie lifetime is reset on every request, whether or not the
	// request touches the chat at all.
	sess := s.session(r)
	sess.Options = s.cookies.Options
	if err := sess.Save(r, w); err != nil {
		trace.Logger(r.Context()).Warn("refresh session cookie", "err", err)
	}

	s.mux.ServeHTTP(w, r)
}

// limited wraps next with a per-route admission limiter.
func (s *Server) limited(l *rateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := l.Allow(clientIP(r)); !ok {
			writeRateLimited(w, wait)
			return
		}
		next(w, r)
	}
}

// --- chat endpoints ----------------------------------------------------------

type sendRequest struct {
	Message string `json:"message"`
}

// handleChatSend is POST /api/chat/send.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var req sendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("message is required"))
		return
	}

	ctx := r.Context()
	sess := s.session(r)
	reply, err := s.conv.Send(ctx, &visitorSession{s: sess}, req.Message)

	switch {
	case err == nil:
		// Persist the (possibly new) chat token into the cookie.
		if err := sess.Save(r, w); err != nil {
			trace.Logger(ctx).Warn("save session after send", "err", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": reply})

	case errors.Is(err, chat.ErrSessionExpired):
		writeJSON(w, http.StatusOK, map[string]string{"message": msgSessionExpired})

	case errors.Is(err, chat.ErrContentDeclined):
		trace.Logger(ctx).Info("chat message declined by content policy")
		writeJSON(w, http.StatusOK, map[string]string{"message": msgDeclined})

	default:
		// Cache outage, corrupt history, model failure: log the detail
		// server-side, hand the caller the fixed outage line.
		trace.Logger(ctx).Error("chat send failed", "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"message": msgOutage})
	}
}

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChatList is GET /api/chat/list.
func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	ctx := r.Context()
	history, err := s.conv.List(ctx, &visitorSession{s: s.session(r)})
	if err != nil {
		trace.Logger(ctx).Error("chat list failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	entries := make([]historyEntry, 0, len(history))
	for _, turn := range history {
		entries = append(entries, historyEntry{
			Role:    string(turn.Role),
			Content: turn.Content(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

type summarizeRequest struct {
	URL string `json:"url"`
}

// handleSummarize is POST /api/summarize.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var req summarizeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return
	}

	ctx := r.Context()
	summary, err := s.conv.Summarize(ctx, req.URL)
	if err != nil {
		trace.Logger(ctx).Error("summarize failed", "err", err)
		writeJSON(w, http.StatusOK, errorBody(msgInternalShort))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// --- data-API proxies --------------------------------------------------------

func (s *Server) launches(ctx context.Context) (json.RawMessage, error) {
	if s.space == nil {
		return nil, fmt.Errorf("httpapi: no space-data client configured")
	}
	return s.space.Launches(ctx)
}

func (s *Server) events(ctx context.Context) (json.RawMessage, error) {
	if s.space == nil {
		return nil, fmt.Errorf("httpapi: no space-data client configured")
	}
	return s.space.Events(ctx)
}

func (s *Server) news(ctx context.Context) (json.RawMessage, error) {
	if s.space == nil {
		return nil, fmt.Errorf("httpapi: no space-data client configured")
	}
	return s.space.News(ctx)
}

func (s *Server) potd(ctx context.Context) (json.RawMessage, error) {
	if s.nasa == nil {
		return nil, fmt.Errorf("httpapi: no nasa client configured")
	}
	return s.nasa.PictureOfTheDay(ctx)
}

// proxyJSON builds a GET handler that forwards the upstream JSON verbatim
// and collapses any failure into the fixed internal-error body.
func (s *Server) proxyJSON(name string, fetch func(context.Context) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
			return
		}
		data, err := fetch(r.Context())
		if err != nil {
			trace.Logger(r.Context()).Error("data endpoint failed", "endpoint", name, "err", err)
			writeJSON(w, http.StatusOK, errorBody(msgInternal))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

// handleFireballMap is GET /api/fireball_map.
func (s *Server) handleFireballMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	if s.nasa == nil {
		writeJSON(w, http.StatusOK, errorBody(msgInternal))
		return
	}
	html, err := s.nasa.FireballMap(r.Context())
	if err != nil {
		trace.Logger(r.Context()).Error("fireball map failed", "err", err)
		writeJSON(w, http.StatusOK, errorBody(msgInternal))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": html})
}

// handlePing is GET /api/ping.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// handleStatic serves the built frontend, falling back to index.html for
// unknown paths so client-side routing works after a hard refresh.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	if rel != "" {
		full := filepath.Join(s.staticDir, rel)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
	}
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}

// --- helpers -----------------------------------------------------------------

// decodeJSONBody decodes the request body into dst. It writes the
// appropriate client-error response and returns false when the body is
// missing, not JSON (415), or structurally wrong (415).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("request body must be JSON"))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("request body must be JSON"))
		return false
	}
	return true
}

func writeRateLimited(w http.ResponseWriter, wait time.Duration) {
	secs := int(wait.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	writeJSON(w, http.StatusTooManyRequests,
		errorBody(fmt.Sprintf("rate limit exceeded, please try again after %d seconds", secs)))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP extracts the caller's address for rate-limit keying, honouring
// the first hop of X-Forwarded-For when the service runs behind a proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
