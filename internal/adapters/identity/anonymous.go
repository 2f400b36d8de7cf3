// Package identity issues anonymous participant identities and the bearer
// tokens that prove them to the token service.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 15 * time.Minute

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrInvalidBearer   = errors.New("invalid bearer token")
	ErrNotConfigured   = errors.New("identity signer is not configured")
	ErrSubjectMismatch = errors.New("bearer subject mismatch")
)

// Config is shared by the issuing side and the verifying side.
type Config struct {
	Issuer string           `mapstructure:"issuer"`
	Secret string           `mapstructure:"secret"`
	TTL    time.Duration    `mapstructure:"ttl"`
	Now    func() time.Time `mapstructure:"-"`
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Issuer) == "" || c.Secret == "" {
		return ErrNotConfigured
	}
	return nil
}

// Anonymous signs the process in under a random identity. The identity is
// kept for the process lifetime; bearers are minted fresh on every call.
type Anonymous struct {
	cfg Config

	mu   sync.Mutex
	user domain.UserID
}

var _ core.IdentityProvider = (*Anonymous)(nil)

func NewAnonymous(cfg Config) (*Anonymous, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Anonymous{cfg: cfg}, nil
}

func (a *Anonymous) Current() (domain.UserID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.user != ""
}

func (a *Anonymous) SignInAnonymously(ctx context.Context) (domain.UserID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user != "" {
		return a.user, nil
	}
	a.user = domain.UserID("anon-" + uuid.NewString())
	log.Info().Str("module", "adapters.identity").Str("user", string(a.user)).Msg("signed in anonymously")
	return a.user, nil
}

func (a *Anonymous) BearerToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	user, ok := a.Current()
	if !ok {
		return "", ErrNotSignedIn
	}
	return Sign(a.cfg, user)
}

// Sign mints a bearer whose subject is user.
func Sign(cfg Config, user domain.UserID) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	now := cfg.now()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   string(user),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign bearer: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, and expiry, and returns the subject.
func Verify(cfg Config, bearer string) (domain.UserID, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return "", ErrInvalidBearer
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.now),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidBearer, err)
	}
	user, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return "", errors.Join(ErrInvalidBearer, err)
	}
	return user, nil
}

// VerifyFor is Verify plus a check that the bearer belongs to want.
func VerifyFor(cfg Config, bearer string, want domain.UserID) error {
	got, err := Verify(cfg, bearer)
	if err != nil {
		return err
	}
	if got != want {
		return ErrSubjectMismatch
	}
	return nil
}
