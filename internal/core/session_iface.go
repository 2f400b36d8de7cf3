package core

import (
	"context"

	"github.com/dkeye/voiceroom/internal/domain"
)

// IdentityProvider supplies the authenticated user and bearer credentials.
type IdentityProvider interface {
	Current() (domain.UserID, bool)
	SignInAnonymously(ctx context.Context) (domain.UserID, error)
	// BearerToken returns a freshly issued credential for the current user.
	BearerToken(ctx context.Context) (string, error)
}
