package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/capture"
	"proctorcap/internal/media"
	"proctorcap/internal/models"
	"proctorcap/internal/service"
)

type StillCapturer interface {
	Capture(ctx context.Context, identity models.SessionIdentity) (models.Image, error)
	Start(ctx context.Context, candidateID, assessmentID string, onImage capture.ImageHandler, onError func(error)) error
	Stop() error
	Cleanup()
	Identity() models.SessionIdentity
}

type ImageProcessor interface {
	ValidateImage(data []byte, mimeType string) service.ValidationResult
	CompressImage(data []byte, mimeType string) ([]byte, string)
}

// ImageOrchestrator validates, compresses and uploads stills, whether they
// come from the camera or from a caller.
type ImageOrchestrator struct {
	*tracker
	still     StillCapturer
	processor ImageProcessor
}

func NewImageOrchestrator(ctx context.Context, still StillCapturer, processor ImageProcessor, concurrency int, callbacks Callbacks, log zerolog.Logger) *ImageOrchestrator {
	return &ImageOrchestrator{
		tracker:   newTracker(ctx, models.KindImage, concurrency, callbacks, log),
		still:     still,
		processor: processor,
	}
}

// IdentityFor reuses the periodic session identity when it belongs to the
// same candidate and assessment, and derives a fresh one otherwise.
func (o *ImageOrchestrator) IdentityFor(candidateID, assessmentID string) models.SessionIdentity {
	current := o.still.Identity()
	if current.SessionID != "" && current.CandidateID == candidateID && current.AssessmentID == assessmentID {
		return current
	}
	return models.NewSessionIdentity(candidateID, assessmentID, time.Now())
}

// UploadImage processes caller supplied image data and uploads it. It
// returns once the outcome is settled.
func (o *ImageOrchestrator) UploadImage(ctx context.Context, identity models.SessionIdentity, data []byte, mimeType string) models.UploadResult {
	capturedAt := time.Now()
	image := models.Image{
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
	}

	return o.processInline(ctx, image)
}

// Snapshot takes a frame from the camera and uploads it. Capture errors are
// returned as errors; upload failures are reported in the result.
func (o *ImageOrchestrator) Snapshot(ctx context.Context, candidateID, assessmentID string) (models.UploadResult, error) {
	image, err := o.still.Capture(ctx, o.IdentityFor(candidateID, assessmentID))
	if err != nil {
		// a periodic loop, if any, keeps running
		o.report(err)
		return models.UploadResult{}, err
	}
	return o.processInline(ctx, image), nil
}

// processInline runs process on the caller's goroutine while holding a
// concurrency slot. A slot that cannot be acquired, or a panic before the
// outcome settled, counts as a failure.
func (o *ImageOrchestrator) processInline(ctx context.Context, image models.Image) models.UploadResult {
	a := &attempt{}
	var result models.UploadResult
	if err := o.tasks.Run(ctx, func(ctx context.Context) {
		result = o.process(ctx, image, a)
	}); err != nil && !a.settled {
		result = models.FailedUpload(err, 0)
		o.settle(outcome{result: result, size: len(image.Data), started: a.started})
	}
	return result
}

func (o *ImageOrchestrator) StartPeriodic(ctx context.Context, candidateID, assessmentID string) error {
	if err := o.still.Start(ctx, candidateID, assessmentID, o.handleImage, o.handleCaptureError); err != nil {
		if errors.Is(err, capture.ErrSessionActive) {
			return err
		}
		o.fail(err)
		return err
	}

	identity := o.still.Identity()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = true
		s.SessionID = identity.SessionID
		s.Error = ""
	})
	return nil
}

func (o *ImageOrchestrator) StopPeriodic() error {
	err := o.still.Stop()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = false
	})
	return err
}

func (o *ImageOrchestrator) Cleanup() {
	o.still.Cleanup()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = false
		s.SessionID = ""
	})
}

// handleCaptureError sees every failed periodic frame. Only a permission
// failure ends the loop; other failures are retried on the next tick.
func (o *ImageOrchestrator) handleCaptureError(err error) {
	if media.IsPermissionDenied(err) {
		o.fail(err)
		return
	}
	o.report(err)
}

// attempt tracks how far process got, for the panic path.
type attempt struct {
	started bool
	settled bool
}

func (o *ImageOrchestrator) handleImage(image models.Image) {
	a := &attempt{}
	o.tasks.Go("upload-image", func(ctx context.Context, log zerolog.Logger) {
		o.process(ctx, image, a)
	}, func(err error) {
		if a.settled {
			return
		}
		o.settle(outcome{result: models.FailedUpload(err, 0), size: len(image.Data), started: a.started})
	})
}

// process runs validation, compression and upload for one image and settles
// its outcome.
func (o *ImageOrchestrator) process(ctx context.Context, image models.Image, a *attempt) models.UploadResult {
	started := time.Now()

	validation := o.processor.ValidateImage(image.Data, image.Metadata.Format)
	if !validation.Valid {
		o.log.Warn().Str("reason", validation.Error).Int("size", len(image.Data)).Msg("image rejected")
		result := models.FailedUpload(fmt.Errorf("invalid image: %s", validation.Error), 0)
		a.settled = true
		o.settle(outcome{result: result, size: len(image.Data), elapsed: time.Since(started), cause: fmt.Errorf("image rejected: %w", validation.Err)})
		return result
	}
	image.Metadata.Format = validation.MimeType

	if validation.NeedsCompression {
		data, format := o.processor.CompressImage(image.Data, image.Metadata.Format)
		image.Data = data
		image.Metadata.Format = format
		image.Metadata.Size = len(data)
	}

	u := o.begin()
	if u == nil {
		result := models.SkippedUpload()
		a.settled = true
		o.settle(outcome{result: result, size: len(image.Data), elapsed: time.Since(started)})
		return result
	}
	a.started = true

	o.update(func(s *models.UploadStatus) { s.UploadProgress = 0 })
	result := u.UploadImage(ctx, image, func(percent int) {
		o.update(func(s *models.UploadStatus) { s.UploadProgress = percent })
	})
	a.settled = true
	o.settle(outcome{result: result, size: len(image.Data), elapsed: time.Since(started), started: true})
	return result
}
