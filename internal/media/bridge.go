// Package media relays a remote client's camera, screen and microphone state
// and browser integrity events to the proctoring engine.
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stream names one captured media stream.
type Stream string

const (
	StreamWebcam Stream = "webcam"
	StreamScreen Stream = "screen"
	StreamAudio  Stream = "audio"
)

// Access is the outcome of the client's consent dialog.
type Access struct {
	Webcam bool     `json:"webcam"`
	Screen bool     `json:"screen"`
	Audio  bool     `json:"audio"`
	Errors []string `json:"errors,omitempty"`
}

// Ready reports whether the hard requirements (camera and screen) are met.
func (a Access) Ready() bool {
	return a.Webcam && a.Screen
}

func (a Access) has(s Stream) bool {
	switch s {
	case StreamWebcam:
		return a.Webcam
	case StreamScreen:
		return a.Screen
	case StreamAudio:
		return a.Audio
	}
	return false
}

// Event is a browser-side signal relayed by the client.
type Event string

const (
	EventTabHidden        Event = "visibility_hidden"
	EventTabVisible       Event = "visibility_visible"
	EventClipboard        Event = "clipboard"
	EventPrintScreen      Event = "print_screen"
	EventScreenShareEnded Event = "screen_share_ended"
	EventAudioTrackEnded  Event = "audio_track_ended"
	EventVideoTrackEnded  Event = "video_track_ended"
)

// Signal is one relayed event.
type Signal struct {
	Event  Event             `json:"event"`
	At     time.Time         `json:"at"`
	Detail map[string]string `json:"detail,omitempty"`
}

var (
	ErrReleased      = errors.New("media streams released")
	ErrStreamMissing = errors.New("stream was not granted")
)

const subscriptionBuffer = 16

// emitWait bounds how long Emit waits on a subscriber whose buffer is full.
const emitWait = 250 * time.Millisecond

type subscription struct {
	events map[Event]struct{}
	ch     chan Signal
}

// Bridge is the server-side half of the media capture subsystem for one session.
type Bridge struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	decision *Access
	notify   chan struct{}
	granted  Access
	previews map[Stream]string
	subs     map[*subscription]struct{}
	released bool
}

func NewBridge(log logrus.FieldLogger) *Bridge {
	return &Bridge{
		log:      log,
		notify:   make(chan struct{}, 1),
		previews: make(map[Stream]string),
		subs:     make(map[*subscription]struct{}),
	}
}

// Grant records the client's consent decision. Each decision is consumed by
// exactly one RequestAccess call.
func (b *Bridge) Grant(access Access) {
	b.mu.Lock()
	b.decision = &access
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// RequestAccess waits for the next consent decision.
func (b *Bridge) RequestAccess(ctx context.Context) (Access, error) {
	for {
		b.mu.Lock()
		if b.released {
			b.mu.Unlock()
			return Access{}, ErrReleased
		}
		if b.decision != nil {
			access := *b.decision
			b.decision = nil
			b.granted = access
			b.mu.Unlock()
			return access, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Access{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// AttachPreview binds a granted stream to a display sink.
func (b *Bridge) AttachPreview(stream Stream, sink string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrReleased
	}
	if !b.granted.has(stream) {
		return ErrStreamMissing
	}
	b.previews[stream] = sink
	return nil
}

// Preview returns the sink attached to stream, if any.
func (b *Bridge) Preview(stream Stream) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sink, ok := b.previews[stream]
	return sink, ok
}

// Signals subscribes to the given events. The channel is closed when the
// subscription is cancelled or the streams are released.
func (b *Bridge) Signals(events ...Event) (<-chan Signal, func()) {
	sub := &subscription{
		events: make(map[Event]struct{}, len(events)),
		ch:     make(chan Signal, subscriptionBuffer),
	}
	for _, e := range events {
		sub.events[e] = struct{}{}
	}

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Emit fans a client signal out to matching subscriptions.
func (b *Bridge) Emit(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if _, ok := sub.events[sig.Event]; !ok {
			continue
		}
		select {
		case sub.ch <- sig:
			continue
		default:
		}
		wait := time.NewTimer(emitWait)
		select {
		case sub.ch <- sig:
		case <-wait.C:
			b.log.WithField("event", sig.Event).Warn("detector backlog full, dropping signal")
		}
		wait.Stop()
	}
}

// ReleaseAll stops every stream and closes all subscriptions.
func (b *Bridge) ReleaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*subscription]struct{})
	b.previews = make(map[Stream]string)
}

// Released reports whether ReleaseAll has been called.
func (b *Bridge) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
