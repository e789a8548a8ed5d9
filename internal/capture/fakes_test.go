package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"proctorcap/internal/media"
)

type fakeTrack struct {
	mu      sync.Mutex
	live    bool
	onEnded []func()
}

func (t *fakeTrack) Kind() string { return "video" }

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
}

func (t *fakeTrack) end() {
	t.mu.Lock()
	t.live = false
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

type fakeStream struct {
	id       string
	track    *fakeTrack
	released atomic.Bool
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{id: id, track: &fakeTrack{live: true}}
}

func (s *fakeStream) ID() string                 { return s.id }
func (s *fakeStream) Active() bool               { return !s.released.Load() && s.track.Live() }
func (s *fakeStream) VideoTracks() []media.Track { return []media.Track{s.track} }
func (s *fakeStream) InputArgs() []string        { return nil }
func (s *fakeStream) HasAudio() bool             { return false }

func (s *fakeStream) Release() {
	s.released.Store(true)
	s.track.Stop()
}

type fakeSource struct {
	err   error
	delay time.Duration

	mu       sync.Mutex
	acquired []*fakeStream
}

func (s *fakeSource) Acquire(ctx context.Context) (media.Stream, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	stream := newFakeStream("stream")
	s.acquired = append(s.acquired, stream)
	return stream, nil
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acquired)
}

func (s *fakeSource) unreleased() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, stream := range s.acquired {
		if !stream.released.Load() {
			n++
		}
	}
	return n
}

func (s *fakeSource) last() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired[len(s.acquired)-1]
}

type fakeRecorder struct {
	factory *fakeFactory
	mime    string

	mu       sync.Mutex
	state    media.RecorderState
	onData   func([]byte)
	stopOnce sync.Once
}

func (r *fakeRecorder) MimeType() string { return r.mime }

func (r *fakeRecorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

func (r *fakeRecorder) State() media.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) Start() error {
	if r.factory.startErr != nil {
		return r.factory.startErr
	}
	r.mu.Lock()
	r.state = media.RecorderRecording
	r.mu.Unlock()

	active := r.factory.active.Add(1)
	for {
		peak := r.factory.peak.Load()
		if active <= peak || r.factory.peak.CompareAndSwap(peak, active) {
			break
		}
	}
	return nil
}

// Stop delivers an empty and a non-empty yield. Concurrent callers return
// only after delivery finished, like the ffmpeg recorder.
func (r *fakeRecorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		if r.state != media.RecorderRecording {
			r.mu.Unlock()
			return
		}
		r.state = media.RecorderInactive
		fn := r.onData
		r.mu.Unlock()

		r.factory.active.Add(-1)
		if fn != nil {
			fn(nil)
			fn([]byte("webm-chunk"))
		}
	})
	return nil
}

type fakeFactory struct {
	supported map[string]bool
	startErr  error

	mu        sync.Mutex
	recorders []*fakeRecorder
	active    atomic.Int32
	peak      atomic.Int32
}

func (f *fakeFactory) IsTypeSupported(mimeType string) bool { return f.supported[mimeType] }

func (f *fakeFactory) NewRecorder(stream media.Stream, opts media.RecorderOptions) (media.Recorder, error) {
	if !stream.Active() {
		return nil, errors.New("stream inactive")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRecorder{factory: f, mime: opts.MimeType}
	f.recorders = append(f.recorders, r)
	return r, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}

type fakeGrabber struct {
	err   error
	calls atomic.Int32
}

func (g *fakeGrabber) Grab(ctx context.Context, stream media.Stream) ([]byte, string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, "", g.err
	}
	return []byte("jpeg-frame"), "image/jpeg", nil
}

