package session

import (
	"net/url"
	"strings"

	"github.com/dkeye/voiceroom/internal/core"
)

// ValidateEndpoint accepts only ws:// and wss:// transport URLs.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		scheme, _, _ := strings.Cut(raw, ":")
		return &core.InvalidEndpointError{Scheme: scheme}
	}
	if !strings.EqualFold(u.Scheme, "ws") && !strings.EqualFold(u.Scheme, "wss") {
		return &core.InvalidEndpointError{Scheme: u.Scheme}
	}
	if u.Host == "" {
		return &core.InvalidEndpointError{Scheme: u.Scheme}
	}
	return nil
}
