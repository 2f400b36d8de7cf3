package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/app/session"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type JoinRequest struct {
	Room   string `json:"room"`
	Camera bool   `json:"camera"`
	Facing string `json:"facing,omitempty"`
}

type CameraRequest struct {
	Facing string `json:"facing,omitempty"`
}

type StatusResponse struct {
	State       session.State    `json:"state"`
	Session     *session.Session `json:"session,omitempty"`
	CameraError string           `json:"camera_error,omitempty"`
	Bindings    []binder.Binding `json:"bindings"`
}

type handlers struct {
	deps Deps
}

func (h *handlers) fail(c *gin.Context, op string, err error) {
	status, body := describe(err)
	log.Warn().Err(err).Str("module", "adapters.http").Str("op", op).Int("status", status).Msg("request failed")
	c.JSON(status, body)
}

func parseFacing(raw string) (domain.FacingMode, bool) {
	switch f := domain.FacingMode(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return domain.FacingUser, true
	case domain.FacingUser, domain.FacingEnvironment:
		return f, true
	}
	return "", false
}

func (h *handlers) status(c *gin.Context) {
	resp := StatusResponse{State: h.deps.Session.State(), Bindings: h.deps.Session.Bindings()}
	if s, ok := h.deps.Session.Current(); ok {
		resp.Session = &s
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Malformed join request."})
		return
	}
	facing, ok := parseFacing(req.Facing)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Facing must be \"user\" or \"environment\"."})
		return
	}
	if !h.deps.JoinLimiter.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many join attempts, slow down."})
		return
	}

	room := domain.RoomID(strings.TrimSpace(req.Room))
	s, err := h.deps.Session.Join(c.Request.Context(), room, h.deps.Mounts, session.JoinOptions{Camera: req.Camera, Facing: facing})
	if err != nil {
		h.fail(c, "join", err)
		return
	}
	resp := StatusResponse{State: h.deps.Session.State(), Session: &s, Bindings: h.deps.Session.Bindings()}
	if s.CameraErr != nil {
		_, body := describe(s.CameraErr)
		resp.CameraError = body.Error
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) leave(c *gin.Context) {
	h.deps.Session.Leave()
	c.JSON(http.StatusOK, StatusResponse{State: h.deps.Session.State(), Bindings: []binder.Binding{}})
}

func (h *handlers) preflight(c *gin.Context) {
	if err := h.deps.Session.Preflight(c.Request.Context()); err != nil {
		h.fail(c, "preflight", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) startCamera(c *gin.Context) {
	var req CameraRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Malformed camera request."})
			return
		}
	}
	facing, ok := parseFacing(req.Facing)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Facing must be \"user\" or \"environment\"."})
		return
	}
	if err := h.deps.Session.StartCamera(c.Request.Context(), facing); err != nil {
		h.fail(c, "camera.start", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "facing": facing})
}

func (h *handlers) stopCamera(c *gin.Context) {
	h.deps.Session.StopCamera()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
