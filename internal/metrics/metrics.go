package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChunksEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctorcap",
			Subsystem: "capture",
			Name:      "chunks_emitted_total",
			Help:      "Recording chunks handed to the upload path",
		},
		[]string{"kind"},
	)

	RecorderRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctorcap",
			Subsystem: "capture",
			Name:      "recorder_rotations_total",
			Help:      "Recorder instances started",
		},
		[]string{"kind"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctorcap",
			Subsystem: "upload",
			Name:      "uploads_total",
			Help:      "Upload outcomes by media kind",
		},
		[]string{"kind", "status"},
	)

	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctorcap",
			Subsystem: "upload",
			Name:      "upload_attempts_total",
			Help:      "Individual upload attempts including retries",
		},
		[]string{"kind"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctorcap",
			Subsystem: "upload",
			Name:      "upload_bytes_total",
			Help:      "Bytes stored successfully",
		},
		[]string{"kind"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proctorcap",
			Subsystem: "upload",
			Name:      "upload_duration_seconds",
			Help:      "Time from dispatch to settled outcome",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)

// Upload statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

func RecordChunk(kind string) {
	ChunksEmitted.WithLabelValues(kind).Inc()
}

func RecordRotation(kind string) {
	RecorderRotations.WithLabelValues(kind).Inc()
}

func RecordAttempt(kind string) {
	UploadAttempts.WithLabelValues(kind).Inc()
}

// RecordUpload records one settled upload outcome.
func RecordUpload(kind, status string, bytes int, durationSec float64) {
	UploadsTotal.WithLabelValues(kind, status).Inc()
	UploadDuration.WithLabelValues(kind).Observe(durationSec)
	if status == StatusSuccess {
		UploadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}
