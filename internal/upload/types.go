package upload

import (
	"context"
	"errors"

	"proctorcap/internal/models"
)

var ErrNotConfigured = errors.New("upload destination not configured")

// PresignedPost is a time-bounded form descriptor issued by the backend.
// Fields carry the key template (with a ${filename} placeholder), the
// content type and the provider signature fields, and are sent verbatim.
type PresignedPost struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

func (p *PresignedPost) Valid() bool {
	return p != nil && p.URL != ""
}

// ProgressFunc receives coarse progress milestones: 0, 50 and 100.
type ProgressFunc func(percent int)

func report(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}

// Uploader turns a chunk or image into a stored object. Implementations
// never return network failures as errors; they are reported in the result.
type Uploader interface {
	UploadChunk(ctx context.Context, chunk models.Chunk, progress ProgressFunc) models.UploadResult
	UploadImage(ctx context.Context, image models.Image, progress ProgressFunc) models.UploadResult
}
