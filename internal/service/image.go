package service

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"proctorcap/internal/config"
)

var (
	ErrImageTooSmall = errors.New("image is too small")
	ErrImageTooLarge = errors.New("image is too large")
	ErrNotImage      = errors.New("not an image")
)

// ValidationResult is the outcome of ValidateImage. A valid image may still
// carry a warning when it is large enough to be worth compressing.
type ValidationResult struct {
	Valid            bool   `json:"valid"`
	Error            string `json:"error,omitempty"`
	Warning          string `json:"warning,omitempty"`
	MimeType         string `json:"mime_type"`
	NeedsCompression bool   `json:"needs_compression"`
	Err              error  `json:"-"`
}

type ImageService struct {
	cfg config.CaptureConfig
	log zerolog.Logger
}

func NewImageService(cfg config.CaptureConfig, log zerolog.Logger) *ImageService {
	return &ImageService{
		cfg: cfg.Merge(config.DefaultCaptureConfig("image")),
		log: log.With().Str("component", "image-service").Logger(),
	}
}

func invalid(err error, mimeType, detail string) ValidationResult {
	return ValidationResult{
		MimeType: mimeType,
		Err:      err,
		Error:    fmt.Sprintf("%s: %s", err, detail),
	}
}

// ValidateImage checks size bounds and that data is an image. An empty or
// generic mimeType is replaced by content sniffing.
func (s *ImageService) ValidateImage(data []byte, mimeType string) ValidationResult {
	size := int64(len(data))

	if size < s.cfg.MinBytes {
		return invalid(ErrImageTooSmall, mimeType, fmt.Sprintf("%d bytes, minimum is %d", size, s.cfg.MinBytes))
	}
	if size > s.cfg.MaxBytes {
		return invalid(ErrImageTooLarge, mimeType, fmt.Sprintf("%s, maximum is %s", formatBytes(size), formatBytes(s.cfg.MaxBytes)))
	}

	mimeType = normalizeMimeType(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMimeType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return invalid(ErrNotImage, mimeType, mimeType)
	}

	result := ValidationResult{Valid: true, MimeType: mimeType}
	if size > s.cfg.WarnBytes {
		result.NeedsCompression = true
		result.Warning = fmt.Sprintf("image is %s, above %s; compression recommended", formatBytes(size), formatBytes(s.cfg.WarnBytes))
	}
	return result
}

// CompressImage downsizes and re-encodes images above the warning threshold.
// It never fails: on any error, or when the result is not smaller, the
// original data and type are returned.
func (s *ImageService) CompressImage(data []byte, mimeType string) ([]byte, string) {
	if int64(len(data)) <= s.cfg.WarnBytes {
		return data, mimeType
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.log.Warn().Err(err).Int("size", len(data)).Msg("failed to decode image, keeping original")
		return data, mimeType
	}

	resized := imaging.Fit(img, s.cfg.MaxWidth, s.cfg.MaxHeight, imaging.Lanczos)

	out, err := encodeImage(resized, s.cfg.Format, s.cfg.Quality)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode image, keeping original")
		return data, mimeType
	}
	if len(out) >= len(data) {
		s.log.Debug().Int("original", len(data)).Int("compressed", len(out)).Msg("compression did not help, keeping original")
		return data, mimeType
	}

	bounds := resized.Bounds()
	s.log.Debug().
		Int("original", len(data)).
		Int("compressed", len(out)).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("image compressed")
	return out, s.cfg.Format
}

func encodeImage(img image.Image, format string, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	q := int(math.Round(quality * 100))
	switch {
	case strings.Contains(format, "png"):
		err = imaging.Encode(&buf, img, imaging.PNG)
	case strings.Contains(format, "webp"):
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(q)})
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// DetectMimeType sniffs the content type of data.
func DetectMimeType(data []byte) string {
	return normalizeMimeType(mimetype.Detect(data).String())
}

func normalizeMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
