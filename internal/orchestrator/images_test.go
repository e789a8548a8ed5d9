package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorcap/internal/capture"
	"proctorcap/internal/media"
	"proctorcap/internal/models"
	"proctorcap/internal/service"
	"proctorcap/internal/upload"
)

func newImageOrchestrator(still StillCapturer, processor ImageProcessor, cb *callbackLog) *ImageOrchestrator {
	return NewImageOrchestrator(context.Background(), still, processor, 2, cb.callbacks(), zerolog.Nop())
}

func TestImageUploadReportsProgress(t *testing.T) {
	cb := &callbackLog{}
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, cb)
	o.Configure(&MockUploader{
		uploadImageFunc: func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
			progress(0)
			progress(50)
			progress(100)
			return models.Uploaded("key", "url", 1)
		},
	})

	identity := o.IdentityFor("cand", "asmt")
	result := o.UploadImage(context.Background(), identity, []byte("jpeg-data"), "image/jpeg")

	require.True(t, result.Success)
	status := o.Status()
	assert.Equal(t, 1, status.ChunksUploaded)
	assert.Equal(t, 100, status.UploadProgress)

	var progress []int
	for _, s := range cb.statuses {
		progress = append(progress, s.UploadProgress)
	}
	assert.Subset(t, progress, []int{0, 50, 100})
}

func TestImageUploadRejectsInvalid(t *testing.T) {
	cb := &callbackLog{}
	calls := 0
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, cb)
	o.Configure(&MockUploader{
		uploadImageFunc: func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
			calls++
			return models.Uploaded("key", "url", 1)
		},
	})

	result := o.UploadImage(context.Background(), o.IdentityFor("cand", "asmt"), []byte("x"), "image/jpeg")

	assert.False(t, result.Success)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, o.Status().ChunksFailed)
	assert.Equal(t, "1 image failed to upload", o.Status().WarningMessage)
	require.Len(t, cb.errs, 1)
	assert.ErrorIs(t, cb.errs[0], service.ErrImageTooSmall)
}

func TestImageUploadCompressesLargeImages(t *testing.T) {
	var uploaded models.Image
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{compress: true}, &callbackLog{})
	o.Configure(&MockUploader{
		uploadImageFunc: func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
			uploaded = image
			return models.Uploaded("key", "url", 1)
		},
	})

	o.UploadImage(context.Background(), o.IdentityFor("cand", "asmt"), []byte("12345678"), "image/png")

	assert.Equal(t, []byte("1234"), uploaded.Data)
	assert.Equal(t, 4, uploaded.Metadata.Size)
	assert.Equal(t, "image/jpeg", uploaded.Metadata.Format)
}

func TestImageUploadSkippedWithoutDestination(t *testing.T) {
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, &callbackLog{})

	result := o.UploadImage(context.Background(), o.IdentityFor("cand", "asmt"), []byte("jpeg-data"), "image/jpeg")

	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, 1, o.Status().ChunksSkipped)
}

func TestSnapshot(t *testing.T) {
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, &callbackLog{})
	var got models.Image
	o.Configure(&MockUploader{
		uploadImageFunc: func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
			got = image
			return models.Uploaded("key", "url", 1)
		},
	})

	result, err := o.Snapshot(context.Background(), "cand", "asmt")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "cand", got.Metadata.CandidateID)
}

func TestSnapshotPermissionDenied(t *testing.T) {
	cb := &callbackLog{}
	o := newImageOrchestrator(&fakeStill{captureErr: media.ErrPermissionDenied}, stubProcessor{}, cb)

	_, err := o.Snapshot(context.Background(), "cand", "asmt")
	assert.True(t, media.IsPermissionDenied(err))
	assert.NotEmpty(t, o.Status().Error)
	assert.Equal(t, 0, o.Status().ChunksFailed)
}

func TestPeriodicImagesAreUploaded(t *testing.T) {
	still := &fakeStill{}
	o := newImageOrchestrator(still, stubProcessor{}, &callbackLog{})
	o.Configure(&MockUploader{})

	require.NoError(t, o.StartPeriodic(context.Background(), "cand", "asmt"))
	assert.True(t, o.Status().IsRecording)

	identity := o.IdentityFor("cand", "asmt")
	assert.Equal(t, still.Identity().SessionID, identity.SessionID)

	image, err := still.Capture(context.Background(), identity)
	require.NoError(t, err)
	still.onImage(image)
	still.onImage(image)
	require.NoError(t, o.Wait(context.Background()))

	assert.Equal(t, 2, o.Status().ChunksUploaded)

	still.onError(media.ErrPermissionDenied)
	assert.False(t, o.Status().IsRecording)

	require.NoError(t, o.StopPeriodic())
	o.Cleanup()
	assert.Empty(t, o.Status().SessionID)
}

func TestPeriodicSecondStartKeepsRecording(t *testing.T) {
	cb := &callbackLog{}
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, cb)
	require.NoError(t, o.StartPeriodic(context.Background(), "cand", "asmt"))

	err := o.StartPeriodic(context.Background(), "cand", "asmt")
	assert.ErrorIs(t, err, capture.ErrSessionActive)
	assert.True(t, o.Status().IsRecording)
	assert.Empty(t, o.Status().Error)
	_, errs := cb.counts()
	assert.Equal(t, 0, errs)
}

func TestPeriodicTransientErrorKeepsRecording(t *testing.T) {
	still := &fakeStill{}
	cb := &callbackLog{}
	o := newImageOrchestrator(still, stubProcessor{}, cb)
	o.Configure(&MockUploader{})
	require.NoError(t, o.StartPeriodic(context.Background(), "cand", "asmt"))

	still.onError(errors.New("grab timed out"))

	status := o.Status()
	assert.True(t, status.IsRecording)
	assert.Equal(t, "grab timed out", status.Error)
	_, errs := cb.counts()
	assert.Equal(t, 1, errs)

	image, err := still.Capture(context.Background(), still.Identity())
	require.NoError(t, err)
	still.onImage(image)
	require.NoError(t, o.Wait(context.Background()))

	assert.True(t, o.Status().IsRecording)
	assert.Equal(t, 1, o.Status().ChunksUploaded)
}

func TestSnapshotFailureKeepsPeriodicRecording(t *testing.T) {
	still := &fakeStill{}
	o := newImageOrchestrator(still, stubProcessor{}, &callbackLog{})
	require.NoError(t, o.StartPeriodic(context.Background(), "cand", "asmt"))

	still.captureErr = errors.New("camera busy")
	_, err := o.Snapshot(context.Background(), "cand", "asmt")
	require.Error(t, err)

	assert.True(t, o.Status().IsRecording)
	assert.Equal(t, "camera busy", o.Status().Error)
}

func TestImageUploaderPanicReleasesInFlight(t *testing.T) {
	panicky := &MockUploader{
		uploadImageFunc: func(ctx context.Context, image models.Image, progress upload.ProgressFunc) models.UploadResult {
			panic("boom")
		},
	}

	t.Run("periodic", func(t *testing.T) {
		still := &fakeStill{}
		cb := &callbackLog{}
		o := newImageOrchestrator(still, stubProcessor{}, cb)
		o.Configure(panicky)
		require.NoError(t, o.StartPeriodic(context.Background(), "cand", "asmt"))

		image, err := still.Capture(context.Background(), still.Identity())
		require.NoError(t, err)
		still.onImage(image)
		require.NoError(t, o.Wait(context.Background()))

		assert.False(t, o.Status().IsUploading)
		assert.Equal(t, 1, o.Status().ChunksFailed)
		_, errs := cb.counts()
		assert.Equal(t, 1, errs)
	})

	t.Run("inline", func(t *testing.T) {
		o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, &callbackLog{})
		o.Configure(panicky)

		result := o.UploadImage(context.Background(), o.IdentityFor("cand", "asmt"), []byte("jpeg-data"), "image/jpeg")

		assert.False(t, result.Success)
		assert.False(t, o.Status().IsUploading)
		assert.Equal(t, 1, o.Status().ChunksFailed)
	})
}

func TestSnapshotSettlesWhenNoSlotIsAvailable(t *testing.T) {
	o := newImageOrchestrator(&fakeStill{}, stubProcessor{}, &callbackLog{})
	o.Configure(&MockUploader{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Snapshot(ctx, "cand", "asmt")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, o.Status().ChunksFailed)
}
