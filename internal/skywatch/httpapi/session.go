package httpapi

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	// sessionName is the cookie carrying the visitor's signed session.
	sessionName = "skywatch_session"
	// sessionKeyChatID is the session value pointing at the conversation's
	// cache entry.
	sessionKeyChatID = "chatID"
)

// visitorSession adapts a gorilla cookie session to the chat.Session
// interface, so the conversation manager never touches HTTP machinery.
type visitorSession struct {
	s *sessions.Session
}

func (v *visitorSession) Token() (string, bool) {
	tok, ok := v.s.Values[sessionKeyChatID].(string)
	return tok, ok && tok != ""
}

func (v *visitorSession) Bind(token string) {
	v.s.Values[sessionKeyChatID] = token
}

// session returns the visitor's session, treating an unreadable or
// tampered-with cookie the same as no cookie at all. Get hands back a
// usable fresh session even when it reports a decode error.
func (s *Server) session(r *http.Request) *sessions.Session {
	sess, _ := s.cookies.Get(r, sessionName)
	return sess
}
