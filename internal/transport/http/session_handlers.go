package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tgsessions/internal/core"
)

// Sessions is the part of the session manager the control API drives. Every method except
// Call must run inside Call.
type Sessions interface {
	Call(ctx context.Context, fn func()) error
	Snapshot() core.Snapshot
	AddNewSession(useTestDC bool) int32
	SwitchToSessions(index int) error
	SetActiveClientOnline(online bool)
}

// SessionHandlers provides HTTP handlers for the session endpoints.
type SessionHandlers struct {
	sessions Sessions
	log      *zerolog.Logger
}

// NewSessionHandlers creates a new session handlers instance.
func NewSessionHandlers(sessions Sessions, logger *zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, log: logger}
}

// AddSessionRequest represents the body of a new session request.
type AddSessionRequest struct {
	TestDC bool `json:"test_dc"`
}

// AddSessionResponse reports the client handle of the new session.
type AddSessionResponse struct {
	ClientID int32 `json:"client_id"`
}

// OnlineRequest represents the body of an online status change.
type OnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// List returns the manager snapshot.
// GET /api/sessions
func (h *SessionHandlers) List(c *gin.Context) {
	var snap core.Snapshot
	if err := h.sessions.Call(c.Request.Context(), func() { snap = h.sessions.Snapshot() }); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Add starts the login of a new account. The login itself happens on the terminal.
// POST /api/sessions
func (h *SessionHandlers) Add(c *gin.Context) {
	var req AddSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid add session request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	var id int32
	if err := h.sessions.Call(c.Request.Context(), func() { id = h.sessions.AddNewSession(req.TestDC) }); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Int32("client_id", id).Bool("test_dc", req.TestDC).Msg("new session requested")
	c.JSON(http.StatusAccepted, AddSessionResponse{ClientID: id})
}

// Activate shows the sessions with the given one selected.
// POST /api/sessions/:index/activate
func (h *SessionHandlers) Activate(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session index"})
		return
	}

	var switchErr error
	if err := h.sessions.Call(c.Request.Context(), func() { switchErr = h.sessions.SwitchToSessions(index) }); err != nil {
		h.fail(c, err)
		return
	}
	if switchErr != nil {
		h.fail(c, switchErr)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetOnline changes the online status of the active session.
// PUT /api/online
func (h *SessionHandlers) SetOnline(c *gin.Context) {
	var req OnlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid online request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	online := *req.Online
	if err := h.sessions.Call(c.Request.Context(), func() { h.sessions.SetActiveClientOnline(online) }); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandlers) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("control request failed")
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
