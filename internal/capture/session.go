// Package capture turns a live media stream into a sequence of independently
// decodable chunks by periodically replacing the recorder.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/config"
	"proctorcap/internal/media"
	"proctorcap/internal/metrics"
	"proctorcap/internal/models"
)

var (
	ErrSessionActive = errors.New("capture: session already active")
	// ErrSessionClosed is returned by Start when Stop or Cleanup ran while
	// the stream was still being acquired.
	ErrSessionClosed = errors.New("capture: session closed during acquisition")
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateRotating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateRotating:
		return "rotating"
	case StateStopped:
		return "stopped"
	}
	return "idle"
}

// ChunkHandler receives every non-empty chunk a session emits. It runs on
// the recorder's goroutine and must not block for long.
type ChunkHandler func(chunk models.Chunk)

type Options struct {
	Kind    models.MediaKind
	Source  media.Source
	Factory media.RecorderFactory
	Config  config.CaptureConfig

	// ReuseStream resumes on a retained stream while it still has a live
	// video track instead of acquiring again.
	ReuseStream bool
	// StopOnTrackEnded stops the session when a video track ends out of band.
	StopOnTrackEnded bool
	// OnDeviceLost is called after the session stopped because its device
	// went away.
	OnDeviceLost func(err error)

	Log zerolog.Logger
}

// Session owns one media stream and the recorder currently encoding it.
type Session struct {
	kind         models.MediaKind
	source       media.Source
	factory      media.RecorderFactory
	cfg          config.CaptureConfig
	reuse        bool
	stopOnEnded  bool
	onDeviceLost func(error)
	log          zerolog.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	creating    bool
	timer       *time.Timer
	stream      media.Stream
	recorder    media.Recorder
	identity    models.SessionIdentity
	onChunk     ChunkHandler
	mimeType    string
	chunkNumber int
}

func NewSession(opts Options) *Session {
	return &Session{
		kind:         opts.Kind,
		source:       opts.Source,
		factory:      opts.Factory,
		cfg:          opts.Config.Merge(config.DefaultCaptureConfig(string(opts.Kind))),
		reuse:        opts.ReuseStream,
		stopOnEnded:  opts.StopOnTrackEnded,
		onDeviceLost: opts.OnDeviceLost,
		log:          opts.Log.With().Str("component", "capture").Str("kind", string(opts.Kind)).Logger(),
	}
}

func (s *Session) Kind() models.MediaKind { return s.kind }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Identity() models.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ChunkCount is the number of recorders started since the last Cleanup.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkNumber
}

// Start acquires the stream (or resumes on a retained one) and schedules the
// first recorder. It returns once rotation is scheduled; chunks are delivered
// to onChunk until Stop.
func (s *Session) Start(ctx context.Context, candidateID, assessmentID string, onChunk ChunkHandler) error {
	s.mu.Lock()
	switch s.state {
	case StateAcquiring, StateRecording, StateRotating:
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateAcquiring
	s.generation++
	gen := s.generation

	stream := s.stream
	reused := s.reuse && media.HasLiveVideo(stream)
	if !reused {
		s.stream = nil
	}
	s.mu.Unlock()

	if !reused {
		if stream != nil {
			stream.Release()
		}
		acquired, err := s.source.Acquire(ctx)
		if err != nil {
			s.mu.Lock()
			if s.generation == gen {
				s.state = StateIdle
			}
			s.mu.Unlock()
			s.log.Error().Err(err).Bool("permission_denied", media.IsPermissionDenied(err)).Msg("failed to acquire stream")
			return fmt.Errorf("%s capture: %w", s.kind, err)
		}
		stream = acquired
		if s.stopOnEnded {
			for _, track := range stream.VideoTracks() {
				track.OnEnded(func() {
					s.deviceLost(acquired, media.ErrTrackEnded)
				})
			}
		}
	}

	s.mu.Lock()
	if s.generation != gen || s.state != StateAcquiring {
		s.mu.Unlock()
		if !reused {
			stream.Release()
		}
		return ErrSessionClosed
	}

	now := time.Now()
	s.stream = stream
	s.identity = models.NewSessionIdentity(candidateID, assessmentID, now)
	s.onChunk = onChunk
	s.mimeType = media.PickMimeType(s.cfg.MimeTypes, s.factory)
	s.state = StateRotating
	s.creating = true
	s.timer = time.AfterFunc(s.cfg.SettleDelay(), func() { s.startRecorder(gen) })
	identity := s.identity
	mimeType := s.mimeType
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", identity.SessionID).
		Str("stream_id", stream.ID()).
		Bool("reused_stream", reused).
		Str("mime_type", mimeType).
		Dur("chunk_interval", s.cfg.ChunkInterval()).
		Msg("capture started")
	return nil
}

// rotate closes out the current chunk and schedules its replacement.
func (s *Session) rotate(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateRecording || s.creating {
		s.mu.Unlock()
		return
	}
	s.creating = true
	s.state = StateRotating
	prev := s.recorder
	s.mu.Unlock()

	if prev != nil && prev.State() == media.RecorderRecording {
		if err := prev.Stop(); err != nil {
			s.log.Debug().Err(err).Msg("previous recorder stop failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.timer = time.AfterFunc(s.cfg.SettleDelay(), func() { s.startRecorder(gen) })
}

func (s *Session) startRecorder(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateRotating {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	opts := media.RecorderOptions{
		MimeType:           s.mimeType,
		VideoBitsPerSecond: s.cfg.VideoBitsPerSecond,
		AudioBitsPerSecond: s.cfg.AudioBitsPerSecond,
	}
	s.mu.Unlock()

	rec, err := s.factory.NewRecorder(stream, opts)

	s.mu.Lock()
	if gen != s.generation || s.state != StateRotating {
		// stopped while constructing; rec was never started
		s.mu.Unlock()
		return
	}

	chunk := s.chunkNumber + 1
	if err == nil {
		startedAt := time.Now()
		meta := models.ChunkMetadata{
			Kind:         s.kind,
			CandidateID:  s.identity.CandidateID,
			AssessmentID: s.identity.AssessmentID,
			SessionID:    s.identity.SessionID,
			ChunkNumber:  chunk,
			Timestamp:    models.FormatTimestamp(startedAt),
			StartedAt:    startedAt,
			MimeType:     rec.MimeType(),
		}
		rec.OnData(s.emitter(meta, s.onChunk))
		if err = rec.Start(); err == nil {
			s.chunkNumber = chunk
			s.recorder = rec
		}
	}

	s.creating = false
	s.state = StateRecording
	s.timer = time.AfterFunc(s.cfg.ChunkInterval(), func() { s.rotate(gen) })
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Int("chunk", chunk).Msg("failed to start recorder")
		if !media.HasLiveVideo(stream) {
			s.deviceLost(stream, media.ErrTrackEnded)
		}
		return
	}

	metrics.RecordRotation(string(s.kind))
	s.log.Debug().Int("chunk", chunk).Msg("recorder started")
}

func (s *Session) emitter(meta models.ChunkMetadata, onChunk ChunkHandler) func([]byte) {
	return func(data []byte) {
		if len(data) == 0 {
			return
		}
		m := meta
		m.Size = len(data)

		metrics.RecordChunk(string(s.kind))
		s.log.Debug().
			Str("session_id", m.SessionID).
			Int("chunk", m.ChunkNumber).
			Int("size", m.Size).
			Msg("chunk ready")

		if onChunk != nil {
			onChunk(models.Chunk{Data: data, Metadata: m})
		}
	}
}

// Stop halts rotation and finalizes the in-flight chunk. The stream is
// retained for a later Start; only Cleanup releases it.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	s.state = StateStopped
	s.creating = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	rec := s.recorder
	s.recorder = nil
	chunks := s.chunkNumber
	sessionID := s.identity.SessionID
	s.mu.Unlock()

	var err error
	if rec != nil {
		if err = rec.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("recorder stop failed")
		}
	}

	s.log.Info().Str("session_id", sessionID).Int("chunks", chunks).Msg("capture stopped")
	return err
}

// Cleanup stops the session, releases the stream and resets the chunk
// counter. The session can be started again afterwards.
func (s *Session) Cleanup() {
	_ = s.Stop()

	s.mu.Lock()
	s.generation++
	s.state = StateIdle
	stream := s.stream
	s.stream = nil
	s.onChunk = nil
	s.identity = models.SessionIdentity{}
	s.chunkNumber = 0
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
	s.log.Debug().Msg("capture cleaned up")
}

func (s *Session) deviceLost(stream media.Stream, cause error) {
	s.mu.Lock()
	current := s.stream == stream
	active := s.state == StateRecording || s.state == StateRotating
	s.mu.Unlock()

	if !current || !active {
		return
	}

	s.log.Warn().Err(cause).Msg("device lost, stopping capture")
	_ = s.Stop()

	if s.onDeviceLost != nil {
		s.onDeviceLost(fmt.Errorf("%s capture: %w", s.kind, cause))
	}
}
