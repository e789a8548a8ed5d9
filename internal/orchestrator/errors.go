package orchestrator

import (
	"errors"
	"fmt"

	"proctorcap/internal/models"
)

// ErrUploadFailed is matched by upload failures passed to OnError.
var ErrUploadFailed = errors.New("upload failed")

// UploadError describes one failed chunk or image upload. ChunkNumber is
// zero for images.
type UploadError struct {
	Kind        models.MediaKind
	ChunkNumber int
	Result      models.UploadResult
}

func (e *UploadError) Error() string {
	if e.ChunkNumber > 0 {
		return fmt.Sprintf("%s chunk %d: upload failed: %s", e.Kind, e.ChunkNumber, e.Result.Error)
	}
	return fmt.Sprintf("%s: upload failed: %s", e.Kind, e.Result.Error)
}

func (e *UploadError) Unwrap() error { return ErrUploadFailed }
