// Package credential exchanges an identity bearer for a room-scoped media
// token at the token-minting service.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

// Credential is consumed by one connect call and never stored.
type Credential struct {
	Token    string
	Role     domain.Role
	Identity domain.UserID
}

type Fetcher struct {
	endpoint string
	identity core.IdentityProvider
	client   *http.Client
}

func NewFetcher(endpoint string, identity core.IdentityProvider, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{endpoint: endpoint, identity: identity, client: client}
}

// Fetch issues exactly one token request. Failures are not retried.
func (f *Fetcher) Fetch(ctx context.Context, room domain.RoomID) (Credential, error) {
	if room.Empty() {
		return Credential{}, core.ErrInvalidRoom
	}
	uid, err := f.ensureIdentity(ctx)
	if err != nil {
		return Credential{}, err
	}
	bearer, err := f.identity.BearerToken(ctx)
	if err != nil {
		return Credential{}, errors.Join(core.ErrUnauthenticated, err)
	}
	if bearer == "" {
		return Credential{}, core.ErrUnauthenticated
	}

	u, err := url.Parse(f.endpoint)
	if err != nil {
		return Credential{}, fmt.Errorf("token endpoint: %w", err)
	}
	q := u.Query()
	q.Set("room", string(room))
	q.Set("identity", string(uid))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Credential{}, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	log.Debug().Str("module", "app.credential").Str("room", string(room)).Str("identity", string(uid)).Msg("requesting media token")
	resp, err := f.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Credential{}, fmt.Errorf("token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Str("module", "app.credential").Str("room", string(room)).Int("status", resp.StatusCode).Msg("token service refused")
		return Credential{}, &core.TokenServiceError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Token string `json:"token"`
		Role  string `json:"role,omitempty"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Token == "" {
		return Credential{}, core.ErrMalformedResponse
	}
	return Credential{Token: payload.Token, Role: domain.Role(payload.Role), Identity: uid}, nil
}

func (f *Fetcher) ensureIdentity(ctx context.Context) (domain.UserID, error) {
	if f.identity == nil {
		return "", core.ErrUnauthenticated
	}
	if uid, ok := f.identity.Current(); ok {
		return uid, nil
	}
	uid, err := f.identity.SignInAnonymously(ctx)
	if err != nil {
		return "", errors.Join(core.ErrUnauthenticated, err)
	}
	return uid, nil
}
