package capture

import (
	"github.com/rs/zerolog"

	"proctorcap/internal/config"
	"proctorcap/internal/media"
	"proctorcap/internal/models"
)

// NewVideoSession records camera and microphone. Every Start acquires the
// devices again. The session stops itself when the camera track ends.
func NewVideoSession(source media.Source, factory media.RecorderFactory, cfg config.CaptureConfig, onDeviceLost func(error), log zerolog.Logger) *Session {
	return NewSession(Options{
		Kind:             models.KindVideo,
		Source:           source,
		Factory:          factory,
		Config:           cfg,
		StopOnTrackEnded: true,
		OnDeviceLost:     onDeviceLost,
		Log:              log,
	})
}

// NewScreenSession records a display. A stream that is still live is reused
// across Stop and Start, and the session stops itself when the display
// track ends.
func NewScreenSession(source media.Source, factory media.RecorderFactory, cfg config.CaptureConfig, onDeviceLost func(error), log zerolog.Logger) *Session {
	return NewSession(Options{
		Kind:             models.KindScreen,
		Source:           source,
		Factory:          factory,
		Config:           cfg,
		ReuseStream:      true,
		StopOnTrackEnded: true,
		OnDeviceLost:     onDeviceLost,
		Log:              log,
	})
}
