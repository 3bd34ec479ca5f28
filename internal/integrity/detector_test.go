package integrity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/media"
)

type collector struct {
	mu    sync.Mutex
	kinds []domain.InfractionKind
	metas []map[string]string
	ch    chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 64)}
}

func (c *collector) report(kind domain.InfractionKind, meta map[string]string) {
	c.mu.Lock()
	c.kinds = append(c.kinds, kind)
	c.metas = append(c.metas, meta)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for infraction %d", i+1)
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

func TestDetectorsReportTheirKind(t *testing.T) {
	log, _ := test.NewNullLogger()
	bridge := media.NewBridge(log)
	set := NewSet(DetectorsFor(bridge, media.Access{Webcam: true, Screen: true, Audio: true})...)
	c := newCollector()
	set.Start(context.Background(), c.report)
	defer set.Stop()

	bridge.Emit(media.Signal{Event: media.EventTabVisible})
	bridge.Emit(media.Signal{Event: media.EventTabHidden})
	bridge.Emit(media.Signal{Event: media.EventPrintScreen, Detail: map[string]string{"key": "PrtSc"}})
	bridge.Emit(media.Signal{Event: media.EventScreenShareEnded})
	bridge.Emit(media.Signal{Event: media.EventAudioTrackEnded})
	bridge.Emit(media.Signal{Event: media.EventVideoTrackEnded})
	c.wait(t, 5)

	seen := map[domain.InfractionKind]bool{}
	c.mu.Lock()
	for i, k := range c.kinds {
		seen[k] = true
		if k == domain.InfractionScreenshotAttempt && c.metas[i]["key"] != "PrtSc" {
			t.Fatalf("expected signal detail in metadata, got %v", c.metas[i])
		}
	}
	c.mu.Unlock()
	for _, k := range []domain.InfractionKind{
		domain.InfractionTabSwitch, domain.InfractionScreenshotAttempt, domain.InfractionScreenRecordingEnd,
		domain.InfractionAudioDropout, domain.InfractionWebcamDropout,
	} {
		if !seen[k] {
			t.Fatalf("missing infraction %s", k)
		}
	}
}

func TestDetectorsWithoutMicrophone(t *testing.T) {
	log, _ := test.NewNullLogger()
	bridge := media.NewBridge(log)
	set := NewSet(DetectorsFor(bridge, media.Access{Webcam: true, Screen: true})...)
	for _, k := range set.Kinds() {
		if k == domain.InfractionAudioDropout {
			t.Fatalf("audio detector must not run without microphone access")
		}
	}
}

func TestLostFeedBecomesInfraction(t *testing.T) {
	log, _ := test.NewNullLogger()
	bridge := media.NewBridge(log)
	set := NewSet(NewWebcamDropoutDetector(bridge), NewTabSwitchDetector(bridge))
	c := newCollector()
	set.Start(context.Background(), c.report)
	defer set.Stop()

	// streams vanish while monitoring is still active
	bridge.ReleaseAll()
	c.wait(t, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.kinds) != 1 || c.kinds[0] != domain.InfractionWebcamDropout || c.metas[0]["reason"] != "feed_lost" {
		t.Fatalf("expected a single webcam feed-lost infraction, got %v %v", c.kinds, c.metas)
	}
}

func TestNoCallbacksAfterStop(t *testing.T) {
	log, _ := test.NewNullLogger()
	bridge := media.NewBridge(log)
	set := NewSet(NewTabSwitchDetector(bridge), NewWebcamDropoutDetector(bridge))
	c := newCollector()
	set.Start(context.Background(), c.report)

	bridge.Emit(media.Signal{Event: media.EventTabHidden})
	c.wait(t, 1)

	set.Stop()
	bridge.Emit(media.Signal{Event: media.EventTabHidden})
	bridge.ReleaseAll()
	time.Sleep(50 * time.Millisecond)

	if got := c.count(); got != 1 {
		t.Fatalf("expected no callbacks after stop, got %d total", got)
	}
}

func TestDisableFromInsideReporter(t *testing.T) {
	log, _ := test.NewNullLogger()
	bridge := media.NewBridge(log)
	set := NewSet(NewTabSwitchDetector(bridge))
	c := newCollector()
	set.Start(context.Background(), func(kind domain.InfractionKind, meta map[string]string) {
		set.Disable()
		c.report(kind, meta)
	})

	bridge.Emit(media.Signal{Event: media.EventTabHidden})
	c.wait(t, 1)
	bridge.Emit(media.Signal{Event: media.EventTabHidden})
	time.Sleep(50 * time.Millisecond)
	set.Stop()

	if got := c.count(); got != 1 {
		t.Fatalf("expected interlock to block the second report, got %d", got)
	}
}
