package api

import (
	"errors"
	"net/http"

	"proctorcap/internal/capture"
	"proctorcap/internal/media"
	"proctorcap/internal/models"
)

const (
	ErrBadRequest        = "bad_request"
	ErrUnknownKind       = "unknown_kind"
	ErrPermissionDenied  = "permission_denied"
	ErrDeviceUnavailable = "device_unavailable"
	ErrSessionActive     = "session_active"
	ErrSessionClosed     = "session_closed"
	ErrCaptureFailed     = "capture_failed"
)

func writeError(w http.ResponseWriter, status int, code, message, hint string) {
	models.NewResponse(message).WithCode(code).WithHint(hint).WriteError(w, status)
}

// writeCaptureError maps capture and device errors onto HTTP statuses.
func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case media.IsPermissionDenied(err):
		writeError(w, http.StatusForbidden, ErrPermissionDenied, err.Error(), "Grant access to the capture device and retry")
	case errors.Is(err, capture.ErrSessionActive):
		writeError(w, http.StatusConflict, ErrSessionActive, err.Error(), "Stop the running session first")
	case errors.Is(err, capture.ErrSessionClosed):
		writeError(w, http.StatusConflict, ErrSessionClosed, err.Error(), "")
	case errors.Is(err, media.ErrDeviceUnavailable), errors.Is(err, media.ErrTrackEnded):
		writeError(w, http.StatusServiceUnavailable, ErrDeviceUnavailable, err.Error(), "")
	default:
		writeError(w, http.StatusInternalServerError, ErrCaptureFailed, err.Error(), "")
	}
}
