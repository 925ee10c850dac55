package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/taskflow-collab/internal/config"
	"github.com/mmuslimabdulj/taskflow-collab/internal/delivery/ws"
	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
	"github.com/mmuslimabdulj/taskflow-collab/internal/middleware"
	"github.com/mmuslimabdulj/taskflow-collab/internal/view"
)

// isOriginAllowed checks if the origin is in the allowed list
func isOriginAllowed(origin string, allowed []string) bool {
	// Empty origin is allowed (non-browser clients, same-origin requests)
	if origin == "" {
		return true
	}

	for _, a := range allowed {
		if a == "*" || origin == a {
			return true
		}
	}
	return false
}

// tokenFrom reads the access token from ?token= or an Authorization: Bearer header
func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// TokenIssuer hands out and revokes in-memory tokens for development setups
type TokenIssuer interface {
	Issue(user domain.User) string
	Revoke(token string) bool
}

type Handler struct {
	state    *ws.CollaborationState
	cfg      *config.Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	tokens   TokenIssuer
}

func NewHandler(state *ws.CollaborationState, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		state:  state,
		cfg:    cfg,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg.AllowedOrigins)
		},
	}
	return h
}

// SetTokenIssuer enables the /internal/tokens routes
func (h *Handler) SetTokenIssuer(t TokenIssuer) {
	h.tokens = t
}

// Routes builds the mux. Nil limiters disable rate limiting for that group.
func (h *Handler) Routes(wsLimiter, apiLimiter *middleware.IPRateLimiter) *http.ServeMux {
	limit := func(l *middleware.IPRateLimiter, next http.HandlerFunc) http.HandlerFunc {
		if l == nil {
			return next
		}
		return middleware.RateLimitFunc(l, next)
	}

	mux := http.NewServeMux()

	// WebSocket routes
	mux.HandleFunc("GET /ws/notifications", limit(wsLimiter, h.HandleGlobalSocket))
	mux.HandleFunc("GET /ws/{kind}/{id}", limit(wsLimiter, h.HandleRoomSocket))

	// API routes
	mux.HandleFunc("GET /api/stats", limit(apiLimiter, h.HandleStats))
	mux.HandleFunc("POST /internal/notify", limit(apiLimiter, h.HandleNotify))
	mux.HandleFunc("GET /debug/rooms", limit(apiLimiter, h.HandleRoomsPage))

	if h.tokens != nil {
		mux.HandleFunc("POST /internal/tokens", limit(apiLimiter, h.HandleIssueToken))
		mux.HandleFunc("DELETE /internal/tokens/{token}", limit(apiLimiter, h.HandleRevokeToken))
	}

	return mux
}

// HandleRoomSocket upgrades HTTP to WebSocket for /ws/{kind}/{id}
func (h *Handler) HandleRoomSocket(w http.ResponseWriter, r *http.Request) {
	spec := ws.RoomSpec{Kind: r.PathValue("kind"), ID: r.PathValue("id")}

	// Reject malformed rooms before spending an upgrade on them
	if _, err := domain.NewRoomID(spec.Kind, spec.ID); err != nil {
		http.Error(w, "Invalid room", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if err := h.state.Gateway.Connect(r.Context(), conn, tokenFrom(r), spec); err != nil {
		h.logger.Debug("room socket ended", zap.String("kind", spec.Kind), zap.String("id", spec.ID), zap.Error(err))
	}
}

// HandleGlobalSocket upgrades HTTP to WebSocket for the caller's notification stream
func (h *Handler) HandleGlobalSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if err := h.state.Gateway.ConnectGlobal(r.Context(), conn, tokenFrom(r)); err != nil {
		h.logger.Debug("notification socket ended", zap.Error(err))
	}
}

type statsResponse struct {
	Rooms       int              `json:"rooms"`
	Connections int              `json:"connections"`
	Details     []roomStatsEntry `json:"details"`
}

type roomStatsEntry struct {
	Room        string `json:"room"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
}

// HandleStats returns room and connection counts
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	summaries := h.state.Registry.Rooms()
	rooms, connections := h.state.Registry.Stats()

	resp := statsResponse{
		Rooms:       rooms,
		Connections: connections,
		Details:     make([]roomStatsEntry, 0, len(summaries)),
	}
	for _, s := range summaries {
		resp.Details = append(resp.Details, roomStatsEntry{Room: s.Room.Key(), Connections: s.Connections, Users: s.Users})
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleRoomsPage renders the live room list
func (h *Handler) HandleRoomsPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	summaries := h.state.Registry.Rooms()
	data := view.RoomsPageData{GeneratedAt: time.Now()}
	for _, s := range summaries {
		data.Rooms = append(data.Rooms, view.RoomRow{Key: s.Room.Key(), Connections: s.Connections, Users: s.Users})
		data.Connections += s.Connections
	}

	if err := view.RoomsPage(data).Render(r.Context(), w); err != nil {
		h.logger.Warn("render rooms page", zap.Error(err))
	}
}

// NotifyRequest is what the REST layer posts after committing a change
type NotifyRequest struct {
	Event       domain.MessageType `json:"event"`
	RoomKind    string             `json:"room_kind"`
	RoomID      string             `json:"room_id"`
	ActorID     string             `json:"actor_id"`
	UserID      string             `json:"user_id"`
	WorkspaceID string             `json:"workspace_id"`
	CommentID   string             `json:"comment_id"`
	Data        json.RawMessage    `json:"data"`
}

var errUnknownEvent = errors.New("unknown event")

// internalAuthorized checks X-Internal-Key and writes 401 when it does not match.
// An empty configured key disables the internal routes.
func (h *Handler) internalAuthorized(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-Internal-Key")
	if h.cfg.InternalAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.InternalAPIKey)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid internal key"})
		return false
	}
	return true
}

// HandleNotify fans a committed change out to the affected rooms
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	if !h.internalAuthorized(w, r) {
		return
	}

	var req NotifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	delivered, err := h.dispatch(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Debug("notify", zap.String("event", string(req.Event)), zap.Int("delivered", delivered))
	writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

func (h *Handler) dispatch(req NotifyRequest) (int, error) {
	var payload any
	if len(req.Data) > 0 {
		payload = req.Data
	}
	n := h.state.Notifier

	if req.Event == domain.MessageTypeMentionReceived {
		if req.UserID == "" {
			return 0, errors.New("user_id is required")
		}
		return n.Mention(req.UserID, payload), nil
	}

	want := expectedKind(req.Event)
	if want == "" {
		return 0, fmt.Errorf("%w: %q", errUnknownEvent, req.Event)
	}
	kind := req.RoomKind
	if kind == "" {
		kind = string(want)
	}
	room, err := domain.NewRoomID(kind, req.RoomID)
	if err != nil {
		return 0, err
	}
	if room.Kind != want {
		return 0, fmt.Errorf("%s targets %s rooms", req.Event, want)
	}

	switch req.Event {
	case domain.MessageTypeCommentCreated:
		return n.CommentCreated(room.ID, payload, req.ActorID), nil
	case domain.MessageTypeCommentUpdated:
		return n.CommentUpdated(room.ID, payload, req.ActorID), nil
	case domain.MessageTypeCommentDeleted:
		return n.CommentDeleted(room.ID, req.CommentID, req.ActorID), nil
	case domain.MessageTypeTaskUpdated:
		return n.TaskUpdated(room.ID, req.WorkspaceID, payload, req.ActorID), nil
	default:
		return n.TemplateUpdated(room.ID, payload, req.ActorID), nil
	}
}

type issueTokenRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// HandleIssueToken creates a token for a user; a user may hold several at once
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.internalAuthorized(w, r) {
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	token := h.tokens.Issue(domain.NewUser(req.UserID, strings.TrimSpace(req.DisplayName)))
	h.logger.Info("token issued", zap.String("user_id", req.UserID))
	writeJSON(w, http.StatusCreated, map[string]string{"token": token, "user_id": req.UserID})
}

// HandleRevokeToken drops a token; live sockets opened with it stay connected
func (h *Handler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if !h.internalAuthorized(w, r) {
		return
	}
	if !h.tokens.Revoke(r.PathValue("token")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown token"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func expectedKind(event domain.MessageType) domain.RoomKind {
	switch event {
	case domain.MessageTypeCommentCreated, domain.MessageTypeCommentUpdated,
		domain.MessageTypeCommentDeleted, domain.MessageTypeTaskUpdated:
		return domain.RoomKindTask
	case domain.MessageTypeTemplateUpdated:
		return domain.RoomKindTemplate
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
