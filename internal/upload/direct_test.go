package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorcap/internal/models"
)

// MockObjectStore implements ObjectStore for testing
type MockObjectStore struct {
	putObjectFunc  func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
	headBucketFunc func(ctx context.Context) error

	mu    sync.Mutex
	puts  int
	heads int
}

func (m *MockObjectStore) PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	data, _ := io.ReadAll(body)
	m.mu.Lock()
	m.puts++
	m.mu.Unlock()
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, key, data, contentType, metadata)
	}
	return nil
}

func (m *MockObjectStore) HeadBucket(ctx context.Context) error {
	m.mu.Lock()
	m.heads++
	m.mu.Unlock()
	if m.headBucketFunc != nil {
		return m.headBucketFunc(ctx)
	}
	return nil
}

func (m *MockObjectStore) ObjectURL(key string) string {
	return "https://bucket.s3.amazonaws.com/" + key
}

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func testImage(size int) models.Image {
	return models.Image{
		Data: bytes.Repeat([]byte{0xAB}, size),
		Metadata: models.ImageMetadata{
			CandidateID:  "cand/1",
			AssessmentID: "asmt#2",
			SessionID:    "cand/1-1709631000000",
			Timestamp:    "20240305T093000",
			Size:         size,
			Format:       "image/jpeg",
		},
	}
}

func newTestUploader(store ObjectStore, timer *recordingTimer) *DirectUploader {
	u := NewDirectUploader(store, "proctoring", DefaultRetryPolicy(), zerolog.Nop())
	u.newTimer = func() backoff.Timer { return timer }
	return u
}

func TestDirectUploadRetriesWithBackoff(t *testing.T) {
	calls := 0
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			calls++
			if calls <= 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	timer := &recordingTimer{}

	var milestones []int
	result := newTestUploader(store, timer).UploadImage(context.Background(), testImage(2048), func(p int) {
		milestones = append(milestones, p)
	})

	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, timer.delays)
	assert.Equal(t, []int{0, 50, 100}, milestones)
	assert.Equal(t, "proctoring/cand_1/asmt_2/image_20240305T093000.jpg", result.Key)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/"+result.Key, result.URL)
}

func TestDirectUploadExhaustsRetries(t *testing.T) {
	calls := 0
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			calls++
			if calls == 4 {
				return errors.New("final failure")
			}
			return errors.New("temporary failure")
		},
	}

	result := newTestUploader(store, &recordingTimer{}).UploadImage(context.Background(), testImage(2048), nil)

	assert.False(t, result.Success)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, "final failure", result.Error)
}

func TestDirectUploadDelayIsCapped(t *testing.T) {
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			return errors.New("down")
		},
	}
	timer := &recordingTimer{}
	u := newTestUploader(store, timer)
	u.policy.MaxAttempts = 6

	u.UploadImage(context.Background(), testImage(2048), nil)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}, timer.delays)
}

func TestDirectUploadPermanentErrorStopsEarly(t *testing.T) {
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			return &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
		},
	}
	timer := &recordingTimer{}

	result := newTestUploader(store, timer).UploadImage(context.Background(), testImage(2048), nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, timer.delays)
	assert.Contains(t, result.Error, "AccessDenied")
}

func TestDirectUploadProbeFailureIsIgnored(t *testing.T) {
	store := &MockObjectStore{
		headBucketFunc: func(ctx context.Context) error { return errors.New("cors blocked") },
	}

	result := newTestUploader(store, &recordingTimer{}).UploadImage(context.Background(), testImage(2048), nil)

	assert.True(t, result.Success)
	assert.Equal(t, 1, store.heads)
	assert.Equal(t, 1, store.puts)
}

func TestDirectUploadChunkMetadata(t *testing.T) {
	var gotKey, gotType string
	var gotMeta map[string]string
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			gotKey, gotType, gotMeta = key, contentType, metadata
			return nil
		},
	}

	chunk := models.Chunk{
		Data: []byte("webm"),
		Metadata: models.ChunkMetadata{
			Kind:         models.KindVideo,
			CandidateID:  "cand",
			AssessmentID: "asmt",
			SessionID:    "cand-1",
			ChunkNumber:  3,
			Timestamp:    "20240305T093000",
		},
	}

	result := newTestUploader(store, &recordingTimer{}).UploadChunk(context.Background(), chunk, nil)
	require.True(t, result.Success)

	assert.Equal(t, "proctoring/cand/asmt/video/cand-1/chunk_00003_20240305T093000.webm", gotKey)
	assert.Equal(t, "video/webm", gotType)
	assert.Equal(t, map[string]string{
		"candidate-id":  "cand",
		"assessment-id": "asmt",
		"session-id":    "cand-1",
		"chunk-number":  "3",
		"timestamp":     "20240305T093000",
		"size":          "4",
	}, gotMeta)
}

func TestDirectUploadStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &MockObjectStore{
		putObjectFunc: func(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
			cancel()
			return errors.New("network down")
		},
	}

	result := newTestUploader(store, &recordingTimer{}).UploadImage(ctx, testImage(2048), nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestNoopUploader(t *testing.T) {
	u := NewNoopUploader(zerolog.Nop())

	result := u.UploadImage(context.Background(), testImage(10), nil)
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)

	result = u.UploadChunk(context.Background(), models.Chunk{Data: []byte("x")}, nil)
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
}
