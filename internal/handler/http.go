package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leagueops/scorekeeper/internal/domain"
	"github.com/leagueops/scorekeeper/internal/scoring"
	"github.com/leagueops/scorekeeper/internal/websocket"
)

type contextKey string

const authContextKey contextKey = "auth"

// TokenVerifier resolves a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(token string) (*domain.AuthContext, error)
}

// StandingsReader lists the derived league table for a season.
type StandingsReader interface {
	ListStandings(ctx context.Context, tenantID, seasonID string) ([]domain.TeamStanding, error)
}

// Handler provides HTTP handlers for the scorekeeper API.
type Handler struct {
	service   *scoring.Service
	standings StandingsReader
	verifier  TokenVerifier
	hub       *websocket.Hub
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *scoring.Service, standings StandingsReader, verifier TokenVerifier, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		standings: standings,
		verifier:  verifier,
		hub:       hub,
		logger:    logger,
	}
}

// APIResponse represents a standard API response.
type APIResponse struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Router creates and configures the HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.With(h.authenticate).Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Post("/events", h.SubmitEvent)
			r.Get("/events", h.ListEvents)
			r.Get("/snapshot", h.GetSnapshot)
		})

		r.Get("/seasons/{seasonID}/standings", h.GetStandings)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// authenticate verifies the bearer token and stores the caller identity on
// the request context. The tenant always comes from the token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		auth, err := h.verifier.Verify(token)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey, *auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	// Browsers cannot set headers on WebSocket upgrades
	return r.URL.Query().Get("token")
}

func authFrom(ctx context.Context) domain.AuthContext {
	auth, _ := ctx.Value(authContextKey).(domain.AuthContext)
	return auth
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response.
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeDomainError maps a typed pipeline error onto an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindTenantIsolation:
		status = http.StatusForbidden
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	resp := APIResponse{
		Success: false,
		Error:   err.Error(),
		Code:    domain.CodeOf(err),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Fields = de.Fields
	}
	if status >= 500 {
		h.logger.Error("request failed", "error", err)
		resp.Error = "internal error"
	}
	h.writeJSON(w, status, resp)
}

// writeBadRequest reports an undecodable request body.
func (h *Handler) writeBadRequest(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Error:   "invalid request body",
		Code:    domain.CodeInvalidPayload,
	})
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, authFrom(r.Context()), h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics.
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.TotalConnections(),
	})
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// SubmitEvent accepts one scoring action for a game.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req scoring.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w)
		return
	}
	req.GameID = chi.URLParam(r, "gameID")
	req.IPAddress = r.RemoteAddr
	if req.Source == "" {
		req.Source = "api"
	}

	result, err := h.service.SubmitAction(r.Context(), authFrom(r.Context()), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, APIResponse{Success: true, Data: result})
}

// ListEvents returns a game's event history in chronological order.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context(), authFrom(r.Context()), chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, events)
}

// GetSnapshot returns the current public view of a game.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetSnapshot(r.Context(), authFrom(r.Context()), chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, snap)
}

// GetStandings returns the derived league table for a season.
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	auth := authFrom(r.Context())
	standings, err := h.standings.ListStandings(r.Context(), auth.TenantID, chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, standings)
}
