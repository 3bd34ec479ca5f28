package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestRequestAccessWaitsForGrant(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBridge(log)

	done := make(chan Access, 1)
	go func() {
		access, err := b.RequestAccess(context.Background())
		if err != nil {
			t.Errorf("request access: %v", err)
		}
		done <- access
	}()

	b.Grant(Access{Webcam: true, Screen: true})
	select {
	case access := <-done:
		if !access.Ready() || access.Audio {
			t.Fatalf("unexpected access %+v", access)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for access")
	}
}

func TestRequestAccessHonoursContext(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBridge(log)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.RequestAccess(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSignalsFanOutAndRelease(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBridge(log)

	tabs, cancelTabs := b.Signals(EventTabHidden)
	defer cancelTabs()
	video, _ := b.Signals(EventVideoTrackEnded)

	b.Emit(Signal{Event: EventTabHidden})
	b.Emit(Signal{Event: EventClipboard})

	select {
	case sig := <-tabs:
		if sig.Event != EventTabHidden || sig.At.IsZero() {
			t.Fatalf("unexpected signal %+v", sig)
		}
	default:
		t.Fatalf("expected tab signal")
	}
	select {
	case sig := <-video:
		t.Fatalf("video subscription got unrelated signal %+v", sig)
	default:
	}

	b.ReleaseAll()
	if _, ok := <-video; ok {
		t.Fatalf("expected closed channel after release")
	}
	if _, err := b.RequestAccess(context.Background()); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error, got %v", err)
	}
}

func TestAttachPreviewRequiresGrantedStream(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBridge(log)
	b.Grant(Access{Webcam: true, Screen: true})
	if _, err := b.RequestAccess(context.Background()); err != nil {
		t.Fatalf("request access: %v", err)
	}

	if err := b.AttachPreview(StreamWebcam, "video#cam"); err != nil {
		t.Fatalf("attach webcam: %v", err)
	}
	if err := b.AttachPreview(StreamAudio, "meter"); !errors.Is(err, ErrStreamMissing) {
		t.Fatalf("expected missing stream error, got %v", err)
	}
	if sink, ok := b.Preview(StreamWebcam); !ok || sink != "video#cam" {
		t.Fatalf("unexpected preview %q", sink)
	}
}

func TestEmitWaitsForSlowSubscriber(t *testing.T) {
	log, hook := test.NewNullLogger()
	b := NewBridge(log)
	tabs, cancel := b.Signals(EventTabHidden)
	defer cancel()

	const total = subscriptionBuffer + 4
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < total; i++ {
			b.Emit(Signal{Event: EventTabHidden})
		}
	}()

	time.Sleep(20 * time.Millisecond)
	received := 0
	for received < total {
		select {
		case <-tabs:
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d signals", received, total)
		}
	}
	<-emitted
	for _, e := range hook.AllEntries() {
		if e.Message == "detector backlog full, dropping signal" {
			t.Fatalf("signal dropped while the subscriber was draining")
		}
	}
}
