package upload

import (
	"context"

	"github.com/rs/zerolog"

	"proctorcap/internal/models"
)

// NoopUploader accepts everything without transferring it. Results are
// successful and marked Skipped.
type NoopUploader struct {
	log zerolog.Logger
}

func NewNoopUploader(log zerolog.Logger) *NoopUploader {
	return &NoopUploader{log: log.With().Str("component", "noop-uploader").Logger()}
}

func (u *NoopUploader) UploadChunk(ctx context.Context, chunk models.Chunk, progress ProgressFunc) models.UploadResult {
	u.log.Debug().Int("chunk", chunk.Metadata.ChunkNumber).Int("size", len(chunk.Data)).Msg("upload skipped")
	return models.SkippedUpload()
}

func (u *NoopUploader) UploadImage(ctx context.Context, image models.Image, progress ProgressFunc) models.UploadResult {
	u.log.Debug().Int("size", len(image.Data)).Msg("upload skipped")
	return models.SkippedUpload()
}
