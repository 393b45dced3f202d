package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"cipherelay/internal/domain"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/transport"
)

const (
	serviceName    = "cipherelay"
	serviceVersion = "1.0.0"
	maxBodyBytes   = 64 * 1024

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients are served from other origins; the bearer token, not
	// the origin, authenticates the socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)

	r.POST("/api/v1/auth/register", s.handleRegister)
	r.POST("/api/v1/auth/login", s.handleLogin)
	r.GET("/api/v1/users", s.requireBearer(s.handleUsers))
	r.GET("/api/v1/keys/:username", s.requireBearer(s.handlePublicKey))
	r.GET("/api/v1/online", s.requireBearer(s.handleOnline))
	if s.deps.Messages != nil {
		r.GET("/api/v1/history", s.requireBearer(s.handleHistory))
	}

	r.GET("/ws", s.handleWebSocket)
	r.GET("/ws/:token", s.handleWebSocket)

	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		s.log.Error().Interface("panic", v).Str("path", req.URL.Path).Msg("handler panicked")
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
	return r
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PublicKey string `json:"public_key"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UserResponse is one directory entry.
type UserResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicKeyResponse carries a user's published key.
type PublicKeyResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// OnlineResponse lists live registry entries.
type OnlineResponse struct {
	Count int               `json:"count"`
	Users []domain.Presence `json:"users"`
}

// HistoryResponse lists the caller's recent messages, newest first.
type HistoryResponse struct {
	Count    int              `json:"count"`
	Messages []domain.Message `json:"messages"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	body := map[string]any{
		"status":      "healthy",
		"connections": s.deps.Registry.Len(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.History != nil {
		body["history"] = s.deps.History.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acct, err := s.deps.Auth.Register(r.Context(), req.Username, req.Password, req.PublicKey, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeToken(w, http.StatusCreated, acct.Username)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acct, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeToken(w, http.StatusOK, acct.Username)
}

func (s *Server) writeToken(w http.ResponseWriter, status int, id domain.Identity) {
	token, expires, err := s.deps.Tokens.IssueToken(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, status, AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      id.String(),
		Username:    id.String(),
		ExpiresAt:   expires,
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	accounts, err := s.deps.Auth.Directory(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]UserResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, UserResponse{UserID: a.Username.String(), Username: a.Username.String(), CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	acct, ok, err := s.deps.Auth.Account(r.Context(), domain.Identity(ps.ByName("username")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, PublicKeyResponse{
		UserID:    acct.Username.String(),
		Username:  acct.Username.String(),
		PublicKey: acct.PublicKey,
	})
}

func (s *Server) handleOnline(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	entries := s.deps.Registry.Entries()
	writeJSON(w, http.StatusOK, OnlineResponse{Count: len(entries), Users: entries})
}

// handleWebSocket upgrades and runs a session on the request goroutine. The
// token comes from the path, or from an Authorization header; without one
// the interactive handshake runs over the socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token := ps.ByName("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := transport.NewWebSocketConn(ws, s.cfg.Conn)
	s.sessions.Add(1)
	defer s.sessions.Done()
	s.runSession(r.Context(), conn, token)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeError maps service errors onto HTTP statuses. Errors without a
// peer-visible reason are logged and hidden behind a generic 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	reason, ok := domain.RejectionReason(err)
	if !ok {
		s.log.Error().Err(err).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidLogin), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	}
	writeDetail(w, status, reason)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	msgs, err := s.deps.Messages.RecentMessages(r.Context(), callerFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Count: len(msgs), Messages: msgs})
}
