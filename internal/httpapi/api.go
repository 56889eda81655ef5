// ABOUTME: HTTP JSON API over the authentication core
// ABOUTME: Maps orchestrator errors onto status codes and wires up routing

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/auth"
)

// Server exposes the authentication core over HTTP.
type Server struct {
	service *auth.Service
	logger  *slog.Logger
}

// New creates an HTTP API server around the authentication service.
func New(service *auth.Service, logger *slog.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// AuthRequest is the JSON request body for POST /api/v1/auth.
type AuthRequest struct {
	Challenge string          `json:"challenge"`
	Proof     json.RawMessage `json:"proof"`
}

// RefreshRequest is the JSON request body for POST /api/v1/refresh and
// POST /api/v1/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// PollRequest is the JSON request body for POST /api/v1/poll.
type PollRequest struct {
	Challenge string `json:"challenge"`
}

// RegisterRequest is the JSON request body for POST /api/v1/register.
type RegisterRequest struct {
	User             map[string]any `json:"user"`
	IsThirdPartyAuth bool           `json:"isThirdPartyAuth"`
}

// RegisterRoutes registers all API routes on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/auth", s.handleAuth)
	mux.HandleFunc("/api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/api/v1/logout", s.handleLogout)
	mux.HandleFunc("/api/v1/poll", s.handlePoll)
	mux.HandleFunc("/api/v1/register", s.handleRegister)
	mux.HandleFunc("/api/v1/credential", s.handleCredential)
	mux.Handle("/api/v1/me", s.RequireAuth(http.HandlerFunc(s.handleMe)))
}

// Handler returns the complete API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleAuth handles POST /api/v1/auth. The body carries the signed
// presentation and the challenge it was signed over; the response carries the
// subject claims and a fresh token pair.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.service.Authenticate(r.Context(), req.Proof, req.Challenge)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handleRefresh handles POST /api/v1/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handleLogout handles POST /api/v1/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.Logout(r.Context(), req.RefreshToken); err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handlePoll handles POST /api/v1/poll. A successful poll returns the token
// pair exactly once; repeating it yields 404.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req PollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pair, err := s.service.Poll(req.Challenge)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, pair)
}

// handleRegister handles POST /api/v1/register. The third-party path returns
// the issued credential; the mail path returns an acknowledgement.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vc, err := s.service.Register(r.Context(), req.User, req.IsThirdPartyAuth)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	if vc != nil {
		s.sendJSON(w, http.StatusOK, vc)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "issuance mail sent"})
}

// handleCredential handles GET /api/v1/credential?token=X&did=Y, redeeming a
// mailed registration token for a signed credential.
func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	vc, err := s.service.GetCredential(r.Context(), q.Get("token"), q.Get("did"))
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, vc)
}

// handleMe handles GET /api/v1/me, returning the claims of the presented
// access token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	s.sendJSON(w, http.StatusOK, claims)
}

// sendJSON writes a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendServiceError maps an orchestrator error onto an HTTP status. Internal
// errors are logged and masked.
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrVerificationFailed),
		errors.Is(err, auth.ErrToken),
		errors.Is(err, auth.ErrUnauthorized):
		s.sendJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrSubscription):
		s.sendJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrMailNotConfigured):
		s.sendJSONError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
