package ffmpeg

import (
	"sync"

	"github.com/google/uuid"

	"proctorcap/internal/media"
)

type track struct {
	kind string

	mu      sync.Mutex
	live    bool
	ended   bool
	onEnded []func()
}

func newTrack(kind string) *track {
	return &track{kind: kind, live: true}
}

func (t *track) Kind() string { return t.kind }

func (t *track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

// Stop ends the track locally. It does not fire ended handlers.
func (t *track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	t.ended = true
}

// end marks the track as ended by the device and fires handlers once.
func (t *track) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.ended = true
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Stream is an acquired ffmpeg input set. ffmpeg opens the device per
// process, so the stream holds the input description and track liveness.
type Stream struct {
	id       string
	input    []string
	hasAudio bool
	tracks   []*track

	mu       sync.Mutex
	released bool
}

func newStream(input []string, hasAudio bool) *Stream {
	return &Stream{
		id:       uuid.NewString(),
		input:    input,
		hasAudio: hasAudio,
		tracks:   []*track{newTrack("video")},
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Active() bool {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return false
	}
	for _, t := range s.tracks {
		if t.Live() {
			return true
		}
	}
	return false
}

func (s *Stream) VideoTracks() []media.Track {
	out := make([]media.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) InputArgs() []string {
	return append([]string(nil), s.input...)
}

func (s *Stream) HasAudio() bool { return s.hasAudio }

func (s *Stream) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	for _, t := range s.tracks {
		t.Stop()
	}
}

// deviceLost is called when a recorder process died on its own.
func (s *Stream) deviceLost() {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return
	}
	for _, t := range s.tracks {
		t.end()
	}
}
