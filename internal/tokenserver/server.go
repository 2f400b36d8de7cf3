// Package tokenserver mints media-room access tokens for signed-in users
// who belong to the requested room.
package tokenserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/voiceroom/internal/adapters/identity"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"
)

const DefaultTokenTTL = time.Hour

type Config struct {
	Port      int                   `mapstructure:"port"`
	APIKey    string                `mapstructure:"api_key"`
	APISecret string                `mapstructure:"api_secret"`
	TokenTTL  time.Duration         `mapstructure:"token_ttl"`
	Rooms     map[string]RoomConfig `mapstructure:"rooms"`
}

type TokenResponse struct {
	Token string      `json:"token"`
	Role  domain.Role `json:"role,omitempty"`
}

type Server struct {
	cfg       Config
	identity  identity.Config
	directory *Directory
}

func New(cfg Config, id identity.Config, dir *Directory) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Server{cfg: cfg, identity: id, directory: dir}
}

func (s *Server) Router(mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/token", s.handleToken)
	r.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.directory.List())
	})
	return r
}

func (s *Server) handleToken(c *gin.Context) {
	room := domain.RoomID(strings.TrimSpace(c.Query("room")))
	user, err := domain.ParseUserID(c.Query("identity"))
	if room.Empty() || err != nil {
		c.String(http.StatusBadRequest, "room and identity are required")
		return
	}

	bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		c.String(http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := identity.VerifyFor(s.identity, bearer, user); err != nil {
		log.Warn().Err(err).Str("module", "tokenserver").Str("user", string(user)).Msg("bearer rejected")
		c.String(http.StatusUnauthorized, "invalid bearer token")
		return
	}

	role, err := s.directory.RoleOf(room, user)
	switch {
	case errors.Is(err, ErrUnknownRoom), errors.Is(err, ErrNotMember):
		log.Info().Str("module", "tokenserver").Str("room", string(room)).Str("user", string(user)).Msg("access denied")
		c.String(http.StatusForbidden, "not a member of this room")
		return
	case err != nil:
		c.String(http.StatusInternalServerError, "directory error")
		return
	}

	token, err := s.mint(room, user, role)
	if err != nil {
		log.Error().Err(err).Str("module", "tokenserver").Msg("mint token")
		c.String(http.StatusInternalServerError, "could not mint token")
		return
	}
	log.Info().Str("module", "tokenserver").Str("room", string(room)).Str("user", string(user)).Str("role", string(role)).Msg("token issued")
	c.JSON(http.StatusOK, TokenResponse{Token: token, Role: role})
}

func (s *Server) mint(room domain.RoomID, user domain.UserID, role domain.Role) (string, error) {
	at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     string(room),
	}
	at.SetVideoGrant(grant).
		SetIdentity(string(user)).
		SetValidFor(s.cfg.TokenTTL).
		SetAttributes(map[string]string{"role": string(role)})
	return at.ToJWT()
}
