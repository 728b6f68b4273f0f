// Package authsdktest provides a fake ESB for exercising sessions and
// authenticated transports.
package authsdktest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/saccoesb/pkg/idx"
	"github.com/aussiebroadwan/saccoesb/pkg/jwtx/jwtxtest"
)

// Default operator accepted by NewServer.
const (
	Username = "jerome.rwego"
	Password = "123"
)

// Server is an httptest server speaking the ESB auth protocol. Routes added
// with Handle only accept the access token most recently issued.
type Server struct {
	*httptest.Server

	t   testing.TB
	mux *http.ServeMux

	Permissions []string
	TTL         time.Duration

	LoginCalls   atomic.Int32
	RefreshCalls atomic.Int32

	mu           sync.Mutex
	access       string
	refresh      string
	refreshFail  int
	refreshDelay time.Duration
	accepted     []string
	attempts     []string
}

// NewServer starts a fake ESB and closes it on cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		t:           t,
		mux:         http.NewServeMux(),
		Permissions: []string{"dashboard:read", "users:read", "users:write"},
		TTL:         time.Hour,
	}

	s.mux.HandleFunc("POST /api/auth/authenticate", s.handleAuthenticate)
	s.mux.HandleFunc("POST /auth/refreshToken", s.handleRefresh)

	s.Server = httptest.NewServer(s.mux)
	t.Cleanup(s.Close)
	return s
}

// Handle registers a protected route.
func (s *Server) Handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		s.attempts = append(s.attempts, r.Header.Get("Authorization"))
		valid := ok && token != "" && token == s.access
		if valid {
			s.accepted = append(s.accepted, token)
		}
		s.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

// Revoke makes the server reject the current access token while keeping
// the refresh token valid.
func (s *Server) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = "revoked"
}

// FailRefresh makes refresh calls answer status. Zero restores success.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = status
}

// SetRefreshDelay holds every refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// AccessToken returns the token currently accepted.
func (s *Server) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// Accepted returns the bearer tokens of every request that passed auth.
func (s *Server) Accepted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accepted...)
}

// Attempts returns the Authorization header of every protected request,
// accepted or not.
func (s *Server) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	s.LoginCalls.Add(1)

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message":  "Malformed login request",
			"dateTime": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if creds.Username != Username || creds.Password != Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, s.issue(creds.Username))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)

	s.mu.Lock()
	delay, fail := s.refreshDelay, s.refreshFail
	s.mu.Unlock()

	time.Sleep(delay)

	if fail != 0 {
		w.WriteHeader(fail)
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	known := body.RefreshToken != "" && body.RefreshToken == s.refresh
	s.mu.Unlock()
	if !known {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, s.issue(Username))
}

func (s *Server) issue(subject string) map[string]string {
	access := jwtxtest.Token(s.t, subject, s.TTL, s.Permissions...)
	refresh := "rt-" + idx.New().String()

	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()

	return map[string]string{"access_token": access, "refresh_token": refresh}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
