// Package orchestrator wires capture sessions to upload clients and keeps
// the per media kind upload status.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/metrics"
	"proctorcap/internal/models"
	"proctorcap/internal/upload"
)

// Callbacks are bound once at construction. Each is optional.
type Callbacks struct {
	OnStatusChange   func(status models.UploadStatus)
	OnUploadComplete func(result models.UploadResult)
	OnError          func(err error)
}

// tracker holds the state shared by both orchestrators: the lazily
// configured uploader, the status record and the task group.
type tracker struct {
	kind      models.MediaKind
	callbacks Callbacks
	tasks     *taskGroup
	log       zerolog.Logger

	mu       sync.Mutex
	uploader upload.Uploader
	status   models.UploadStatus
	inFlight int
}

func newTracker(ctx context.Context, kind models.MediaKind, concurrency int, callbacks Callbacks, log zerolog.Logger) *tracker {
	log = log.With().Str("component", "orchestrator").Str("kind", string(kind)).Logger()
	return &tracker{
		kind:      kind,
		callbacks: callbacks,
		tasks:     newTaskGroup(ctx, concurrency, log),
		log:       log,
		status:    models.UploadStatus{Kind: kind},
	}
}

// Configure installs the uploader. Only the first call with a non-nil
// uploader has an effect; it reports whether this call configured it.
func (t *tracker) Configure(u upload.Uploader) bool {
	if u == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.uploader != nil {
		return false
	}
	t.uploader = u
	t.log.Info().Msg("upload destination configured")
	return true
}

func (t *tracker) Configured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploader != nil
}

func (t *tracker) Status() models.UploadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Wait drains in-flight uploads.
func (t *tracker) Wait(ctx context.Context) error {
	return t.tasks.Wait(ctx)
}

// update mutates the status under the lock and notifies the listener.
func (t *tracker) update(fn func(s *models.UploadStatus)) models.UploadStatus {
	t.mu.Lock()
	fn(&t.status)
	status := t.status
	t.mu.Unlock()

	if t.callbacks.OnStatusChange != nil {
		t.callbacks.OnStatusChange(status)
	}
	return status
}

// begin reserves an in-flight slot and returns the uploader, or nil when no
// destination is configured yet.
func (t *tracker) begin() upload.Uploader {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.uploader == nil {
		return nil
	}
	t.inFlight++
	t.status.IsUploading = true
	return t.uploader
}

// outcome is one settled chunk or image upload.
type outcome struct {
	result  models.UploadResult
	size    int
	chunk   int
	elapsed time.Duration
	// started reports whether begin reserved an in-flight slot.
	started bool
	cause   error
}

// settle records one outcome exactly once.
func (t *tracker) settle(o outcome) {
	status := metrics.StatusSuccess
	switch {
	case !o.result.Success:
		status = metrics.StatusFailed
	case o.result.Skipped:
		status = metrics.StatusSkipped
	}
	metrics.RecordUpload(string(t.kind), status, o.size, o.elapsed.Seconds())

	t.update(func(s *models.UploadStatus) {
		if o.started {
			t.inFlight--
			s.IsUploading = t.inFlight > 0
		}
		switch status {
		case metrics.StatusSuccess:
			s.ChunksUploaded++
		case metrics.StatusSkipped:
			s.ChunksSkipped++
		default:
			s.ChunksFailed++
			s.WarningMessage = models.FailureWarning(t.kind, s.ChunksFailed)
		}
	})

	if !o.result.Success {
		cause := o.cause
		if cause == nil {
			cause = &UploadError{Kind: t.kind, ChunkNumber: o.chunk, Result: o.result}
		}
		if t.callbacks.OnError != nil {
			t.callbacks.OnError(cause)
		}
		return
	}
	if t.callbacks.OnUploadComplete != nil {
		t.callbacks.OnUploadComplete(o.result)
	}
}

// fail records an error that ended recording.
func (t *tracker) fail(err error) {
	t.update(func(s *models.UploadStatus) {
		s.IsRecording = false
		s.Error = err.Error()
	})
	if t.callbacks.OnError != nil {
		t.callbacks.OnError(err)
	}
}

// report records an error that left recording running.
func (t *tracker) report(err error) {
	t.update(func(s *models.UploadStatus) {
		s.Error = err.Error()
	})
	if t.callbacks.OnError != nil {
		t.callbacks.OnError(err)
	}
}
