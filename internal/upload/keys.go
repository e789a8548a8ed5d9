package upload

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"proctorcap/internal/models"
)

const maxSegmentLength = 200

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9!_.*'()-]`)

// SanitizeSegment makes s safe to use as one object key path segment.
func SanitizeSegment(s string) string {
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	if len(s) > maxSegmentLength {
		s = s[:maxSegmentLength]
	}
	return s
}

func joinKey(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// ImageKey is "{folder}/{candidate}/{assessment}/image_{timestamp}.{ext}".
func ImageKey(folder string, meta models.ImageMetadata, ext string) string {
	return joinKey(
		strings.Trim(folder, "/"),
		SanitizeSegment(meta.CandidateID),
		SanitizeSegment(meta.AssessmentID),
		ImageFilename(meta, ext),
	)
}

func ImageFilename(meta models.ImageMetadata, ext string) string {
	return fmt.Sprintf("image_%s.%s", meta.Timestamp, ext)
}

// ChunkKey is "{folder}/{candidate}/{assessment}/{kind}/{session}/chunk_{n}_{timestamp}.webm".
func ChunkKey(folder string, meta models.ChunkMetadata) string {
	return joinKey(
		strings.Trim(folder, "/"),
		SanitizeSegment(meta.CandidateID),
		SanitizeSegment(meta.AssessmentID),
		string(meta.Kind),
		SanitizeSegment(meta.SessionID),
		fmt.Sprintf("chunk_%05d_%s.webm", meta.ChunkNumber, meta.Timestamp),
	)
}

// ChunkFilename names a chunk by the span it covers, from its start to end.
func ChunkFilename(meta models.ChunkMetadata, end time.Time) string {
	return fmt.Sprintf("%s_%s.webm", meta.Timestamp, models.FormatTimestamp(end))
}

// ExtensionFor maps an image MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
