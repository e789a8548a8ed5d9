package upload

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"proctorcap/internal/models"
)

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"cand/1", "cand_1"},
		{"asmt#2", "asmt_2"},
		{"a b?c", "a_b_c"},
		{"keep!_.*'()-", "keep!_.*'()-"},
		{"é", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSegment(tt.in))
		})
	}

	assert.Len(t, SanitizeSegment(strings.Repeat("x", 500)), 200)
}

func TestImageKey(t *testing.T) {
	meta := models.ImageMetadata{CandidateID: "cand/1", AssessmentID: "asmt#2", Timestamp: "20240305T093000"}

	key := ImageKey("proctoring", meta, "jpg")
	assert.Equal(t, "proctoring/cand_1/asmt_2/image_20240305T093000.jpg", key)

	segments := strings.Split(key, "/")
	for _, segment := range segments[1:3] {
		assert.NotContains(t, segment, "#")
	}
	assert.Len(t, segments, 4)

	assert.Equal(t, "cand_1/asmt_2/image_20240305T093000.jpg", ImageKey("", meta, "jpg"))
}

func TestChunkKey(t *testing.T) {
	meta := models.ChunkMetadata{
		Kind:         models.KindScreen,
		CandidateID:  "cand/1",
		AssessmentID: "asmt#2",
		SessionID:    "cand/1-1709631000000",
		ChunkNumber:  7,
		Timestamp:    "20240305T093000",
	}

	assert.Equal(t,
		"proctoring/cand_1/asmt_2/screen/cand_1-1709631000000/chunk_00007_20240305T093000.webm",
		ChunkKey("/proctoring/", meta))
}

func TestChunkFilename(t *testing.T) {
	meta := models.ChunkMetadata{Timestamp: "20240305T093000"}
	end := time.Date(2024, 3, 5, 9, 30, 30, 0, time.UTC)

	assert.Equal(t, "20240305T093000_20240305T093030.webm", ChunkFilename(meta, end))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "png", ExtensionFor("image/png; charset=binary"))
	assert.Equal(t, "webp", ExtensionFor("image/webp"))
	assert.Equal(t, "jpg", ExtensionFor(""))
}
