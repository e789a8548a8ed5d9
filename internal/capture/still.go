package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/media"
	"proctorcap/internal/models"
)

type ImageHandler func(image models.Image)

// StillSession takes single frames from the camera, on demand or on a fixed
// interval. The camera is acquired lazily and held until Cleanup.
type StillSession struct {
	source   media.Source
	grabber  media.FrameGrabber
	interval time.Duration
	log      zerolog.Logger

	// acquireMu serializes camera acquisition so concurrent captures share
	// one stream.
	acquireMu sync.Mutex

	mu       sync.Mutex
	stream   media.Stream
	identity models.SessionIdentity
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewStillSession(source media.Source, grabber media.FrameGrabber, interval time.Duration, log zerolog.Logger) *StillSession {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StillSession{
		source:   source,
		grabber:  grabber,
		interval: interval,
		log:      log.With().Str("component", "capture").Str("kind", string(models.KindImage)).Logger(),
	}
}

func (s *StillSession) Identity() models.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *StillSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *StillSession) ensureStream(ctx context.Context) (media.Stream, error) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if media.HasLiveVideo(stream) {
		return stream, nil
	}
	if stream != nil {
		stream.Release()
	}

	acquired, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("image capture: %w", err)
	}

	s.mu.Lock()
	s.stream = acquired
	s.mu.Unlock()
	return acquired, nil
}

// Capture grabs one frame and stamps it with identity.
func (s *StillSession) Capture(ctx context.Context, identity models.SessionIdentity) (models.Image, error) {
	stream, err := s.ensureStream(ctx)
	if err != nil {
		return models.Image{}, err
	}

	data, mimeType, err := s.grabber.Grab(ctx, stream)
	if err != nil {
		return models.Image{}, fmt.Errorf("image capture: %w", err)
	}

	capturedAt := time.Now()
	return models.Image{
		Data: data,
		Metadata: models.ImageMetadata{
			CandidateID:  identity.CandidateID,
			AssessmentID: identity.AssessmentID,
			SessionID:    identity.SessionID,
			Timestamp:    models.FormatTimestamp(capturedAt),
			CapturedAt:   capturedAt,
			Size:         len(data),
			Format:       mimeType,
		},
	}, nil
}

// Start captures a frame immediately and then once per interval until Stop.
// A permission failure ends the loop and is reported through onError.
func (s *StillSession) Start(ctx context.Context, candidateID, assessmentID string, onImage ImageHandler, onError func(error)) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.mu.Unlock()

	if _, err := s.ensureStream(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSessionActive
	}

	identity := models.NewSessionIdentity(candidateID, assessmentID, time.Now())
	loopCtx, cancel := context.WithCancel(context.Background())
	s.identity = identity
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, identity, onImage, onError, s.done)

	s.log.Info().Str("session_id", identity.SessionID).Dur("interval", s.interval).Msg("periodic capture started")
	return nil
}

func (s *StillSession) loop(ctx context.Context, identity models.SessionIdentity, onImage ImageHandler, onError func(error), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		image, err := s.Capture(ctx, identity)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			s.log.Warn().Err(err).Msg("still capture failed")
			if onError != nil {
				onError(err)
			}
			if media.IsPermissionDenied(err) {
				s.detach(done)
				return
			}
		case onImage != nil:
			onImage(image)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends periodic capture and waits for an in-flight frame. The camera
// stays open.
func (s *StillSession) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.log.Info().Msg("periodic capture stopped")
	return nil
}

// detach clears the loop handles if they still belong to the loop that
// owns done. A newer loop started after a Stop is left alone.
func (s *StillSession) detach(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.log.Info().Msg("periodic capture ended")
}

func (s *StillSession) Cleanup() {
	_ = s.Stop()

	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.identity = models.SessionIdentity{}
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
}
