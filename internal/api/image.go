package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"proctorcap/internal/models"
)

// Stills is the image pipeline as seen by the API.
type Stills interface {
	IdentityFor(candidateID, assessmentID string) models.SessionIdentity
	UploadImage(ctx context.Context, identity models.SessionIdentity, data []byte, mimeType string) models.UploadResult
	Snapshot(ctx context.Context, candidateID, assessmentID string) (models.UploadResult, error)
	StartPeriodic(ctx context.Context, candidateID, assessmentID string) error
	StopPeriodic() error
	Cleanup()
	Status() models.UploadStatus
}

type ImageAPI struct {
	stills   Stills
	maxBytes int64
	onStart  SessionHook
	log      zerolog.Logger
}

func NewImageAPI(stills Stills, maxBytes int64, onStart SessionHook, log zerolog.Logger) *ImageAPI {
	return &ImageAPI{
		stills:   stills,
		maxBytes: maxBytes,
		onStart:  onStart,
		log:      log,
	}
}

func writeResult(w http.ResponseWriter, result models.UploadResult) {
	status := http.StatusCreated
	switch {
	case result.Skipped:
		status = http.StatusAccepted
	case !result.Success:
		status = http.StatusBadGateway
	}
	models.WriteJSON(w, status, result)
}

// HandleUpload handles POST /v1/images with a multipart "file" part and
// candidate_id / assessment_id form fields.
func (h *ImageAPI) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// the service validates the real size; leave headroom for the form
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrBadRequest, "Image exceeds maximum size", "")
			return
		}
		writeError(w, http.StatusBadRequest, ErrBadRequest, err.Error(), "")
		return
	}

	req := StartRequest{
		CandidateID:  r.FormValue("candidate_id"),
		AssessmentID: r.FormValue("assessment_id"),
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, ErrBadRequest, msg, "")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrBadRequest, err.Error(), "Send the image as multipart field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrBadRequest, err.Error(), "")
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	identity := h.stills.IdentityFor(req.CandidateID, req.AssessmentID)
	result := h.stills.UploadImage(r.Context(), identity, data, mimeType)
	if !result.Success {
		h.log.Warn().Str("error", result.Error).Str("filename", header.Filename).Msg("image upload failed")
	}
	writeResult(w, result)
}

// HandleSnapshot handles POST /v1/images/snapshot
func (h *ImageAPI) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStart(w, r)
	if !ok {
		return
	}

	result, err := h.stills.Snapshot(r.Context(), req.CandidateID, req.AssessmentID)
	if err != nil {
		writeCaptureError(w, fmt.Errorf("snapshot: %w", err))
		return
	}
	if h.onStart != nil {
		h.onStart(req.CandidateID, req.AssessmentID)
	}
	writeResult(w, result)
}

// HandleStartPeriodic handles POST /v1/images/periodic/start
func (h *ImageAPI) HandleStartPeriodic(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStart(w, r)
	if !ok {
		return
	}

	if err := h.stills.StartPeriodic(context.WithoutCancel(r.Context()), req.CandidateID, req.AssessmentID); err != nil {
		writeCaptureError(w, err)
		return
	}
	if h.onStart != nil {
		h.onStart(req.CandidateID, req.AssessmentID)
	}
	models.WriteJSON(w, http.StatusCreated, h.stills.Status())
}

// HandleStopPeriodic handles POST /v1/images/periodic/stop
func (h *ImageAPI) HandleStopPeriodic(w http.ResponseWriter, r *http.Request) {
	if err := h.stills.StopPeriodic(); err != nil {
		writeCaptureError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, h.stills.Status())
}

// HandleCleanup handles POST /v1/images/cleanup
func (h *ImageAPI) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	h.stills.Cleanup()
	models.WriteJSON(w, http.StatusOK, h.stills.Status())
}

// HandleStatus handles GET /v1/images/status
func (h *ImageAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	models.WriteJSON(w, http.StatusOK, h.stills.Status())
}
