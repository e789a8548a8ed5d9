package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"proctorcap/internal/models"
)

// Recorder is one chunked recording pipeline as seen by the API.
type Recorder interface {
	StartRecording(ctx context.Context, candidateID, assessmentID string) error
	StopRecording() error
	Cleanup()
	Status() models.UploadStatus
}

// SessionHook is told about every session the API starts.
type SessionHook func(candidateID, assessmentID string)

type StartRequest struct {
	CandidateID  string `json:"candidate_id"`
	AssessmentID string `json:"assessment_id"`
}

func (r StartRequest) validate() string {
	switch {
	case strings.TrimSpace(r.CandidateID) == "":
		return "candidate_id is required"
	case strings.TrimSpace(r.AssessmentID) == "":
		return "assessment_id is required"
	}
	return ""
}

func decodeStart(w http.ResponseWriter, r *http.Request) (StartRequest, bool) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrBadRequest, "Invalid request body", "Expected {\"candidate_id\", \"assessment_id\"}")
		return req, false
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, ErrBadRequest, msg, "")
		return req, false
	}
	return req, true
}

type CaptureAPI struct {
	recorders map[models.MediaKind]Recorder
	onStart   SessionHook
	log       zerolog.Logger
}

func NewCaptureAPI(recorders map[models.MediaKind]Recorder, onStart SessionHook, log zerolog.Logger) *CaptureAPI {
	return &CaptureAPI{
		recorders: recorders,
		onStart:   onStart,
		log:       log,
	}
}

func (h *CaptureAPI) recorder(w http.ResponseWriter, r *http.Request) (Recorder, bool) {
	kind := models.MediaKind(chi.URLParam(r, "kind"))
	rec, ok := h.recorders[kind]
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownKind, "Unknown capture kind: "+string(kind), "Use video or screen")
		return nil, false
	}
	return rec, true
}

// HandleStart handles POST /v1/capture/{kind}/start
func (h *CaptureAPI) HandleStart(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recorder(w, r)
	if !ok {
		return
	}
	req, ok := decodeStart(w, r)
	if !ok {
		return
	}

	// the session outlives the request
	if err := rec.StartRecording(context.WithoutCancel(r.Context()), req.CandidateID, req.AssessmentID); err != nil {
		h.log.Warn().Err(err).Str("kind", chi.URLParam(r, "kind")).Msg("start recording failed")
		writeCaptureError(w, err)
		return
	}
	if h.onStart != nil {
		h.onStart(req.CandidateID, req.AssessmentID)
	}

	models.WriteJSON(w, http.StatusCreated, rec.Status())
}

// HandleStop handles POST /v1/capture/{kind}/stop
func (h *CaptureAPI) HandleStop(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recorder(w, r)
	if !ok {
		return
	}
	if err := rec.StopRecording(); err != nil {
		writeCaptureError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, rec.Status())
}

// HandleCleanup handles POST /v1/capture/{kind}/cleanup
func (h *CaptureAPI) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recorder(w, r)
	if !ok {
		return
	}
	rec.Cleanup()
	models.WriteJSON(w, http.StatusOK, rec.Status())
}

// HandleStatus handles GET /v1/capture/{kind}/status
func (h *CaptureAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recorder(w, r)
	if !ok {
		return
	}
	models.WriteJSON(w, http.StatusOK, rec.Status())
}
