package media

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/core/coretest"
)

func TestPreflight(t *testing.T) {
	t.Parallel()

	t.Run("unsupported", func(t *testing.T) {
		t.Parallel()
		if err := Preflight(context.Background(), nil); !errors.Is(err, core.ErrDeviceUnsupported) {
			t.Fatalf("err = %v, want ErrDeviceUnsupported", err)
		}
	})

	t.Run("denied", func(t *testing.T) {
		t.Parallel()
		dev := &coretest.Devices{UserMediaErr: fmt.Errorf("camera: %w", core.ErrPermissionDenied)}
		if err := Preflight(context.Background(), dev); !errors.Is(err, core.ErrPermissionDenied) {
			t.Fatalf("err = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("granted tracks released", func(t *testing.T) {
		t.Parallel()
		dev := &coretest.Devices{}
		if err := Preflight(context.Background(), dev); err != nil {
			t.Fatalf("Preflight error = %v", err)
		}
		if len(dev.Granted) != 1 {
			t.Fatalf("granted = %d, want 1 video track", len(dev.Granted))
		}
		if dev.Granted[0].Stops() != 1 {
			t.Fatal("preflight track left open")
		}
	})
}
