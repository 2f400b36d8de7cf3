package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voiceroom/internal/app/binder"
	"github.com/dkeye/voiceroom/internal/app/session"
	"github.com/dkeye/voiceroom/internal/config"
	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionController is the part of session.Controller the API drives.
type SessionController interface {
	Join(ctx context.Context, room domain.RoomID, mounts core.Mounts, opts session.JoinOptions) (session.Session, error)
	Leave()
	StartCamera(ctx context.Context, facing domain.FacingMode) error
	StopCamera()
	Preflight(ctx context.Context) error
	State() session.State
	Current() (session.Session, bool)
	Bindings() []binder.Binding
}

type EventStream interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Session     SessionController
	Mounts      core.Mounts
	Events      EventStream
	JoinLimiter *RateLimiter
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a per-browser token in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			s.Set("ct", token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceroomSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{deps: deps}
	api := r.Group("/api")
	api.GET("/session", h.status)
	api.POST("/session/join", h.join)
	api.POST("/session/leave", h.leave)
	api.POST("/camera/preflight", h.preflight)
	api.POST("/camera/start", h.startCamera)
	api.POST("/camera/stop", h.stopCamera)

	if deps.Events != nil {
		api.GET("/ws/events", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws events endpoint hit")
			deps.Events.Serve(ctx, c.Writer, c.Request)
		})
	}

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
