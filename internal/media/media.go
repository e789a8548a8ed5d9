// Package media defines the device, stream and recorder contracts a capture
// session drives. Concrete backends live in subpackages.
package media

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the user or the OS refuses access
	// to a camera, microphone or display. Callers must not retry it.
	ErrPermissionDenied = errors.New("media: permission denied")
	// ErrDeviceUnavailable means the device does not exist or cannot be opened.
	ErrDeviceUnavailable = errors.New("media: device unavailable")
	// ErrTrackEnded reports that a track ended outside of our control.
	ErrTrackEnded = errors.New("media: track ended")
)

// IsPermissionDenied reports whether err is a refusal rather than a
// transient failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Source acquires a live stream from a device or display.
type Source interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired device handle shared by successive recorders.
type Stream interface {
	ID() string
	Active() bool
	VideoTracks() []Track
	// InputArgs describes how a recorder should read the stream.
	InputArgs() []string
	HasAudio() bool
	Release()
}

type Track interface {
	Kind() string
	Live() bool
	// OnEnded registers fn to run once when the track ends on its own.
	OnEnded(fn func())
	Stop()
}

// HasLiveVideo reports whether s is active and carries at least one live
// video track.
func HasLiveVideo(s Stream) bool {
	if s == nil || !s.Active() {
		return false
	}
	for _, t := range s.VideoTracks() {
		if t.Live() {
			return true
		}
	}
	return false
}

type RecorderState int

const (
	RecorderInactive RecorderState = iota
	RecorderRecording
)

func (s RecorderState) String() string {
	if s == RecorderRecording {
		return "recording"
	}
	return "inactive"
}

type RecorderOptions struct {
	MimeType           string
	VideoBitsPerSecond int
	AudioBitsPerSecond int
}

// Recorder encodes a stream into a single self contained container.
type Recorder interface {
	Start() error
	// Stop finishes encoding and delivers any remaining data through the
	// OnData handler before returning. Stopping an inactive recorder is a
	// no-op.
	Stop() error
	State() RecorderState
	OnData(fn func(data []byte))
	MimeType() string
}

type RecorderFactory interface {
	IsTypeSupported(mimeType string) bool
	NewRecorder(stream Stream, opts RecorderOptions) (Recorder, error)
}

// FrameGrabber captures a single still frame from a stream.
type FrameGrabber interface {
	Grab(ctx context.Context, stream Stream) (data []byte, mimeType string, err error)
}

// PickMimeType returns the first candidate the factory supports, or "" to
// let the recorder choose its default.
func PickMimeType(candidates []string, factory RecorderFactory) string {
	for _, candidate := range candidates {
		if factory.IsTypeSupported(candidate) {
			return candidate
		}
	}
	return ""
}
