package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"proctorcap/internal/capture"
	"proctorcap/internal/models"
	"proctorcap/internal/service"
	"proctorcap/internal/upload"
)

type fakeSession struct {
	startErr error

	mu       sync.Mutex
	onChunk  capture.ChunkHandler
	identity models.SessionIdentity
	stopped  bool
	cleaned  bool
}

func (s *fakeSession) Start(ctx context.Context, candidateID, assessmentID string, onChunk capture.ChunkHandler) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = onChunk
	s.identity = models.NewSessionIdentity(candidateID, assessmentID, time.UnixMilli(1709631000000))
	return nil
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeSession) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = true
}

func (s *fakeSession) Identity() models.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *fakeSession) emit(n int) {
	s.mu.Lock()
	handler, identity := s.onChunk, s.identity
	s.mu.Unlock()
	handler(models.Chunk{
		Data: []byte("webm"),
		Metadata: models.ChunkMetadata{
			Kind:        models.KindVideo,
			CandidateID: identity.CandidateID,
			SessionID:   identity.SessionID,
			ChunkNumber: n,
			Size:        4,
		},
	})
}

// MockUploader implements upload.Uploader for testing
type MockUploader struct {
	uploadChunkFunc func(ctx context.Context, chunk models.Chunk) models.UploadResult
	uploadImageFunc func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult
}

func (m *MockUploader) UploadChunk(ctx context.Context, chunk models.Chunk, progress upload.ProgressFunc) models.UploadResult {
	if m.uploadChunkFunc != nil {
		return m.uploadChunkFunc(ctx, chunk)
	}
	return models.Uploaded("key", "url", 1)
}

func (m *MockUploader) UploadImage(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
	if m.uploadImageFunc != nil {
		return m.uploadImageFunc(ctx, image, progress)
	}
	return models.Uploaded("key", "url", 1)
}

type fakeStill struct {
	captureErr error

	mu       sync.Mutex
	identity models.SessionIdentity
	onImage  capture.ImageHandler
	onError  func(error)
	running  bool
}

func (s *fakeStill) Capture(ctx context.Context, identity models.SessionIdentity) (models.Image, error) {
	if s.captureErr != nil {
		return models.Image{}, s.captureErr
	}
	return models.Image{
		Data: []byte("frame"),
		Metadata: models.ImageMetadata{
			CandidateID:  identity.CandidateID,
			AssessmentID: identity.AssessmentID,
			SessionID:    identity.SessionID,
			Timestamp:    "20240305T093000",
			Size:         5,
			Format:       "image/jpeg",
		},
	}, nil
}

func (s *fakeStill) Start(ctx context.Context, candidateID, assessmentID string, onImage capture.ImageHandler, onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return capture.ErrSessionActive
	}
	s.running = true
	s.identity = models.NewSessionIdentity(candidateID, assessmentID, time.UnixMilli(1709631000000))
	s.onImage = onImage
	s.onError = onError
	return nil
}

func (s *fakeStill) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *fakeStill) Cleanup() {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = models.SessionIdentity{}
}

func (s *fakeStill) Identity() models.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// stubProcessor accepts anything above 2 bytes and "compresses" by halving.
type stubProcessor struct {
	compress bool
}

func (p stubProcessor) ValidateImage(data []byte, mimeType string) service.ValidationResult {
	if len(data) < 2 {
		return service.ValidationResult{Err: service.ErrImageTooSmall, Error: "image is too small"}
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return service.ValidationResult{Valid: true, MimeType: mimeType, NeedsCompression: p.compress}
}

func (p stubProcessor) CompressImage(data []byte, mimeType string) ([]byte, string) {
	return data[:len(data)/2], "image/jpeg"
}

var errNetwork = errors.New("network unreachable")
