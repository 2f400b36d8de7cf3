package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/voiceroom/internal/core"
)

// ErrorResponse carries one human-readable message per failed operation.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

const permissionHint = "Allow device access (devices.allow_microphone / devices.allow_camera) and try again."

func describe(err error) (int, ErrorResponse) {
	var (
		tokenErr     *core.TokenServiceError
		endpointErr  *core.InvalidEndpointError
		transportErr *core.TransportError
	)
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden, ErrorResponse{Error: "Camera or microphone access was denied.", Hint: permissionHint}
	case errors.Is(err, core.ErrDeviceUnsupported):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "No capture device is available."}
	case errors.Is(err, core.ErrInvalidRoom):
		return http.StatusBadRequest, ErrorResponse{Error: "A room id is required."}
	case errors.Is(err, core.ErrNotConnected):
		return http.StatusConflict, ErrorResponse{Error: "Not connected to a room."}
	case errors.Is(err, core.ErrSuperseded):
		return http.StatusConflict, ErrorResponse{Error: "The join was replaced by a newer request."}
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "Could not sign in."}
	case errors.As(err, &tokenErr):
		if tokenErr.Status == http.StatusForbidden {
			return http.StatusForbidden, ErrorResponse{Error: "You are not a member of this room."}
		}
		return http.StatusBadGateway, ErrorResponse{Error: fmt.Sprintf("The token service refused the request (status %d).", tokenErr.Status)}
	case errors.Is(err, core.ErrMalformedResponse):
		return http.StatusBadGateway, ErrorResponse{Error: "The token service returned an unusable response."}
	case errors.As(err, &endpointErr):
		return http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf("The media server address must use ws:// or wss:// (got %q).", endpointErr.Scheme)}
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, ErrorResponse{Error: fmt.Sprintf("The media server connection failed during %s.", transportErr.Op)}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "Something went wrong."}
}
