package models

import (
	"fmt"
	"time"
)

// MediaKind names one capture pipeline.
type MediaKind string

const (
	KindVideo  MediaKind = "video"
	KindScreen MediaKind = "screen"
	KindImage  MediaKind = "image"
)

func (k MediaKind) Valid() bool {
	switch k {
	case KindVideo, KindScreen, KindImage:
		return true
	}
	return false
}

// BasicTimestampLayout is ISO-8601 basic format with punctuation stripped.
const BasicTimestampLayout = "20060102T150405"

// FormatTimestamp renders t in UTC using BasicTimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(BasicTimestampLayout)
}

// SessionIdentity identifies one capture lifetime, from start to cleanup.
type SessionIdentity struct {
	CandidateID  string    `json:"candidate_id"`
	AssessmentID string    `json:"assessment_id"`
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
}

// NewSessionIdentity derives the session id as "{candidateID}-{startEpochMs}".
func NewSessionIdentity(candidateID, assessmentID string, startedAt time.Time) SessionIdentity {
	return SessionIdentity{
		CandidateID:  candidateID,
		AssessmentID: assessmentID,
		SessionID:    fmt.Sprintf("%s-%d", candidateID, startedAt.UnixMilli()),
		StartedAt:    startedAt,
	}
}

// ChunkMetadata describes one emitted recording segment. Timestamp is the
// moment the recorder that produced the chunk started.
type ChunkMetadata struct {
	Kind         MediaKind `json:"kind"`
	CandidateID  string    `json:"candidate_id"`
	AssessmentID string    `json:"assessment_id"`
	SessionID    string    `json:"session_id"`
	ChunkNumber  int       `json:"chunk_number"`
	Timestamp    string    `json:"timestamp"`
	StartedAt    time.Time `json:"started_at"`
	MimeType     string    `json:"mime_type,omitempty"`
	Size         int       `json:"size"`
}

// Chunk pairs an emitted blob with its metadata.
type Chunk struct {
	Data     []byte
	Metadata ChunkMetadata
}

type ImageMetadata struct {
	CandidateID  string    `json:"candidate_id"`
	AssessmentID string    `json:"assessment_id"`
	SessionID    string    `json:"session_id"`
	Timestamp    string    `json:"timestamp"`
	CapturedAt   time.Time `json:"captured_at"`
	Size         int       `json:"size"`
	Format       string    `json:"format"`
}

type Image struct {
	Data     []byte
	Metadata ImageMetadata
}
