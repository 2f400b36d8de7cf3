package media

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/voiceroom/internal/core"
	"github.com/dkeye/voiceroom/internal/core/coretest"
	"github.com/dkeye/voiceroom/internal/domain"
)

func TestPublishMicrophoneEnablesVoiceProcessing(t *testing.T) {
	t.Parallel()

	tr := &coretest.Transport{}
	dev := &coretest.Devices{}
	pub, err := NewPublisher(tr, dev, nil).PublishMicrophone(context.Background())
	if err != nil {
		t.Fatalf("PublishMicrophone error = %v", err)
	}
	if pub.Kind() != domain.TrackKindAudio {
		t.Fatalf("kind = %q, want audio", pub.Kind())
	}
	want := core.AudioCaptureOptions{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
	if dev.MicOptions != want {
		t.Fatalf("mic options = %+v, want %+v", dev.MicOptions, want)
	}
}

func TestPublishFailureStopsTrack(t *testing.T) {
	t.Parallel()

	tr := &coretest.Transport{PublishErr: errors.New("rejected")}
	dev := &coretest.Devices{}
	if _, err := NewPublisher(tr, dev, nil).PublishMicrophone(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}
	created := dev.CreatedTracks()
	if len(created) != 1 || created[0].Stops() != 1 {
		t.Fatalf("track not released after failed publish")
	}
}

func TestStartCameraRequiresTransport(t *testing.T) {
	t.Parallel()

	_, err := NewPublisher(nil, &coretest.Devices{}, nil).StartCamera(context.Background(), domain.FacingUser)
	if !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestStartThenStopCamera(t *testing.T) {
	t.Parallel()

	tr := &coretest.Transport{}
	dev := &coretest.Devices{}
	preview := &coretest.Preview{}
	p := NewPublisher(tr, dev, preview)

	if _, err := p.PublishMicrophone(context.Background()); err != nil {
		t.Fatalf("PublishMicrophone error = %v", err)
	}
	if _, err := p.StartCamera(context.Background(), domain.FacingEnvironment); err != nil {
		t.Fatalf("StartCamera error = %v", err)
	}
	if dev.CameraOptions.Width != CameraWidth || dev.CameraOptions.Height != CameraHeight {
		t.Fatalf("camera options = %+v", dev.CameraOptions)
	}
	src, muted, autoplay := preview.State()
	if src == nil || !muted || !autoplay {
		t.Fatalf("preview = src %v muted %v autoplay %v", src, muted, autoplay)
	}

	rep := p.StopCamera()
	if rep.Err() != nil || rep.Released != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, pub := range tr.Publications() {
		if pub.Kind() == domain.TrackKindVideo {
			t.Fatalf("video publication %s survived StopCamera", pub.SID())
		}
	}
	if len(tr.Publications()) != 1 {
		t.Fatalf("microphone publication should remain")
	}
	if src, _, _ := preview.State(); src != nil {
		t.Fatal("preview source not cleared")
	}
}

func TestStopCameraWithoutCameraIsNoop(t *testing.T) {
	t.Parallel()

	rep := NewPublisher(&coretest.Transport{}, &coretest.Devices{}, nil).StopCamera()
	if rep.Released != 0 || rep.Err() != nil {
		t.Fatalf("report = %+v", rep)
	}
	if rep := NewPublisher(nil, nil, nil).StopCamera(); rep.Released != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestReleaseAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	tr := &coretest.Transport{}
	dev := &coretest.Devices{}
	p := NewPublisher(tr, dev, nil)
	ctx := context.Background()
	if _, err := p.PublishMicrophone(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.StartCamera(ctx, domain.FacingUser); err != nil {
		t.Fatal(err)
	}
	tr.UnpublishErr = func(pub core.Publication) error {
		if pub.Kind() == domain.TrackKindAudio {
			return errors.New("signal lost")
		}
		return nil
	}

	rep := p.ReleaseAll()
	if len(rep.Failures) != 1 || rep.Released != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, track := range dev.CreatedTracks() {
		if track.Stops() != 1 {
			t.Fatalf("track %s stops = %d, want 1", track.Label(), track.Stops())
		}
	}
}
