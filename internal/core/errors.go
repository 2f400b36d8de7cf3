package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrMalformedResponse = errors.New("malformed token response")
	ErrDeviceUnsupported = errors.New("media devices unsupported")
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrNotConnected      = errors.New("not connected")
	ErrInvalidRoom       = errors.New("room id empty")
	ErrSuperseded        = errors.New("join superseded by a newer join or leave")
	ErrUnsupportedTrack  = errors.New("track not publishable by this transport")
)

// TokenServiceError is a non-success reply from the token-minting service.
type TokenServiceError struct {
	Status int
	Body   string
}

func (e *TokenServiceError) Error() string {
	return fmt.Sprintf("token service: status %d: %s", e.Status, e.Body)
}

// InvalidEndpointError rejects a transport URL whose scheme is not ws/wss.
type InvalidEndpointError struct {
	Scheme string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("invalid transport endpoint scheme %q", e.Scheme)
}

// TransportError wraps an opaque failure of the media transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
