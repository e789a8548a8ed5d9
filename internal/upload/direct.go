package upload

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"proctorcap/internal/metrics"
	"proctorcap/internal/models"
	"proctorcap/internal/s3"
)

const probeTimeout = 3 * time.Second

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// DirectUploader PUTs objects with long-lived credentials and retries
// transient failures with exponential backoff.
type DirectUploader struct {
	store  ObjectStore
	folder string
	policy RetryPolicy
	log    zerolog.Logger

	// newTimer overrides the backoff timer; nil uses a real one.
	newTimer func() backoff.Timer
}

func NewDirectUploader(store ObjectStore, folder string, policy RetryPolicy, log zerolog.Logger) *DirectUploader {
	return &DirectUploader{
		store:  store,
		folder: folder,
		policy: policy,
		log:    log.With().Str("component", "direct-uploader").Logger(),
	}
}

func (u *DirectUploader) UploadImage(ctx context.Context, image models.Image, progress ProgressFunc) models.UploadResult {
	meta := image.Metadata
	key := ImageKey(u.folder, meta, ExtensionFor(meta.Format))
	metadata := map[string]string{
		"candidate-id":  meta.CandidateID,
		"assessment-id": meta.AssessmentID,
		"session-id":    meta.SessionID,
		"timestamp":     meta.Timestamp,
		"size":          strconv.Itoa(len(image.Data)),
	}
	return u.put(ctx, models.KindImage, key, image.Data, meta.Format, metadata, progress)
}

func (u *DirectUploader) UploadChunk(ctx context.Context, chunk models.Chunk, progress ProgressFunc) models.UploadResult {
	meta := chunk.Metadata
	contentType := meta.MimeType
	if contentType == "" {
		contentType = "video/webm"
	}
	metadata := map[string]string{
		"candidate-id":  meta.CandidateID,
		"assessment-id": meta.AssessmentID,
		"session-id":    meta.SessionID,
		"chunk-number":  strconv.Itoa(meta.ChunkNumber),
		"timestamp":     meta.Timestamp,
		"size":          strconv.Itoa(len(chunk.Data)),
	}
	return u.put(ctx, meta.Kind, ChunkKey(u.folder, meta), chunk.Data, contentType, metadata, progress)
}

// probe checks reachability. Its outcome is only logged: a failed probe
// does not mean the upload will fail.
func (u *DirectUploader) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := u.store.HeadBucket(ctx); err != nil {
		u.log.Debug().Err(err).Msg("storage reachability probe failed, uploading anyway")
	}
}

func (u *DirectUploader) put(ctx context.Context, kind models.MediaKind, key string, data []byte, contentType string, metadata map[string]string, progress ProgressFunc) models.UploadResult {
	report(progress, 0)
	u.probe(ctx)
	report(progress, 50)

	attempts := 0
	operation := func() error {
		attempts++
		metrics.RecordAttempt(string(kind))
		err := u.store.PutObject(ctx, key, bytes.NewReader(data), contentType, metadata)
		if err != nil && s3.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		u.log.Warn().
			Err(err).
			Str("key", key).
			Int("attempt", attempts).
			Dur("retry_in", next).
			Msg("upload attempt failed")
	}

	var timer backoff.Timer
	if u.newTimer != nil {
		timer = u.newTimer()
	}

	if err := backoff.RetryNotifyWithTimer(operation, u.policy.backOff(ctx), notify, timer); err != nil {
		u.log.Error().Err(err).Str("key", key).Int("attempts", attempts).Msg("upload failed")
		return models.FailedUpload(err, attempts)
	}

	report(progress, 100)
	u.log.Debug().Str("key", key).Int("size", len(data)).Int("attempts", attempts).Msg("upload complete")
	return models.Uploaded(key, u.store.ObjectURL(key), attempts)
}
