package integrity

import (
	"context"
	"sync"
	"time"

	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/media"
)

// Reporter receives infractions from detectors.
type Reporter func(kind domain.InfractionKind, metadata map[string]string)

// Source delivers relayed client signals.
type Source interface {
	Signals(events ...media.Event) (<-chan media.Signal, func())
}

// Detector observes one signal source and emits discrete infractions.
type Detector interface {
	Kind() domain.InfractionKind
	Start(ctx context.Context, report Reporter)
	Stop()
}

type signalDetector struct {
	kind     domain.InfractionKind
	source   Source
	events   []media.Event
	triggers map[media.Event]struct{}
	// stream-backed detectors treat a closed subscription as a lost feed
	feed bool

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

func newSignalDetector(kind domain.InfractionKind, source Source, feed bool, events []media.Event, triggers ...media.Event) *signalDetector {
	d := &signalDetector{
		kind:     kind,
		source:   source,
		events:   events,
		triggers: make(map[media.Event]struct{}, len(triggers)),
		feed:     feed,
	}
	for _, e := range triggers {
		d.triggers[e] = struct{}{}
	}
	return d
}

// NewTabSwitchDetector reports each time the assessment tab is hidden.
func NewTabSwitchDetector(source Source) Detector {
	return newSignalDetector(domain.InfractionTabSwitch, source, false,
		[]media.Event{media.EventTabHidden, media.EventTabVisible}, media.EventTabHidden)
}

// NewScreenshotDetector reports clipboard and print-screen attempts.
func NewScreenshotDetector(source Source) Detector {
	events := []media.Event{media.EventClipboard, media.EventPrintScreen}
	return newSignalDetector(domain.InfractionScreenshotAttempt, source, false, events, events...)
}

// NewScreenRecordingDetector reports when screen sharing stops.
func NewScreenRecordingDetector(source Source) Detector {
	return newSignalDetector(domain.InfractionScreenRecordingEnd, source, true,
		[]media.Event{media.EventScreenShareEnded}, media.EventScreenShareEnded)
}

// NewAudioDropoutDetector reports when the microphone track ends or its feed is lost.
func NewAudioDropoutDetector(source Source) Detector {
	return newSignalDetector(domain.InfractionAudioDropout, source, true,
		[]media.Event{media.EventAudioTrackEnded}, media.EventAudioTrackEnded)
}

// NewWebcamDropoutDetector reports when the camera track ends or its feed is lost.
func NewWebcamDropoutDetector(source Source) Detector {
	return newSignalDetector(domain.InfractionWebcamDropout, source, true,
		[]media.Event{media.EventVideoTrackEnded}, media.EventVideoTrackEnded)
}

// DetectorsFor builds the detectors the granted streams can support.
// Missing microphone access leaves audio unmonitored instead of failing.
func DetectorsFor(source Source, access media.Access) []Detector {
	detectors := []Detector{
		NewTabSwitchDetector(source),
		NewScreenshotDetector(source),
	}
	if access.Screen {
		detectors = append(detectors, NewScreenRecordingDetector(source))
	}
	if access.Webcam {
		detectors = append(detectors, NewWebcamDropoutDetector(source))
	}
	if access.Audio {
		detectors = append(detectors, NewAudioDropoutDetector(source))
	}
	return detectors
}

func (d *signalDetector) Kind() domain.InfractionKind {
	return d.kind
}

func (d *signalDetector) Start(ctx context.Context, report Reporter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	signals, unsub := d.source.Signals(d.events...)
	d.cancel = cancel
	d.unsub = unsub
	d.done = make(chan struct{})

	go d.observe(ctx, signals, report, d.done)
}

func (d *signalDetector) observe(ctx context.Context, signals <-chan media.Signal, report Reporter, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				if d.feed && ctx.Err() == nil {
					report(d.kind, map[string]string{"reason": "feed_lost"})
				}
				return
			}
			if _, hit := d.triggers[sig.Event]; !hit {
				continue
			}
			meta := map[string]string{
				"event": string(sig.Event),
				"at":    sig.At.UTC().Format(time.RFC3339Nano),
			}
			for k, v := range sig.Detail {
				meta[k] = v
			}
			report(d.kind, meta)
		}
	}
}

func (d *signalDetector) Stop() {
	d.mu.Lock()
	cancel, unsub, done := d.cancel, d.unsub, d.done
	d.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	unsub()
	<-done
}
