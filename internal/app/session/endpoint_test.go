package session

import (
	"errors"
	"testing"

	"github.com/dkeye/voiceroom/internal/core"
)

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw        string
		wantErr    bool
		wantScheme string
	}{
		{raw: "ws://localhost:7880"},
		{raw: "wss://media.example.com"},
		{raw: "WSS://media.example.com"},
		{raw: "http://host", wantErr: true, wantScheme: "http"},
		{raw: "ftp://host", wantErr: true, wantScheme: "ftp"},
		{raw: "wss://", wantErr: true, wantScheme: "wss"},
		{raw: "", wantErr: true},
	}

	for _, tc := range tests {
		err := ValidateEndpoint(tc.raw)
		if !tc.wantErr {
			if err != nil {
				t.Fatalf("ValidateEndpoint(%q) = %v", tc.raw, err)
			}
			continue
		}
		var inv *core.InvalidEndpointError
		if !errors.As(err, &inv) {
			t.Fatalf("ValidateEndpoint(%q) = %v, want InvalidEndpointError", tc.raw, err)
		}
		if inv.Scheme != tc.wantScheme {
			t.Fatalf("scheme = %q, want %q", inv.Scheme, tc.wantScheme)
		}
	}
}
