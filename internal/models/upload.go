package models

import "fmt"

// UploadResult is the outcome of one upload. Skipped marks a success that
// performed no transfer because no destination was configured.
type UploadResult struct {
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	URL      string `json:"url,omitempty"`
	Key      string `json:"key,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

func Uploaded(key, url string, attempts int) UploadResult {
	return UploadResult{Success: true, Key: key, URL: url, Attempts: attempts}
}

func SkippedUpload() UploadResult {
	return UploadResult{Success: true, Skipped: true}
}

func FailedUpload(err error, attempts int) UploadResult {
	msg := "upload failed"
	if err != nil {
		msg = err.Error()
	}
	return UploadResult{Success: false, Error: msg, Attempts: attempts}
}

// UploadStatus is the long-lived record an orchestrator keeps per media kind.
type UploadStatus struct {
	Kind            MediaKind `json:"kind"`
	IsRecording     bool      `json:"is_recording"`
	IsUploading     bool      `json:"is_uploading"`
	SessionID       string    `json:"session_id,omitempty"`
	ChunksUploaded  int       `json:"chunks_uploaded"`
	ChunksFailed    int       `json:"chunks_failed"`
	ChunksSkipped   int       `json:"chunks_skipped"`
	LastChunkNumber int       `json:"last_chunk_number,omitempty"`
	UploadProgress  int       `json:"upload_progress"`
	WarningMessage  string    `json:"warning_message,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// FailureWarning is the user facing summary of cumulative failures.
func FailureWarning(kind MediaKind, failed int) string {
	if failed <= 0 {
		return ""
	}
	noun := "chunks"
	if kind == KindImage {
		noun = "images"
	}
	if failed == 1 {
		noun = noun[:len(noun)-1]
	}
	return fmt.Sprintf("%d %s failed to upload", failed, noun)
}
