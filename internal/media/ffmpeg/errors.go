package ffmpeg

import (
	"fmt"
	"strings"

	"proctorcap/internal/media"
)

var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"cannot open display",
	"not authorized",
}

var unavailableMarkers = []string{
	"no such file or directory",
	"no such device",
	"input/output error",
	"device or resource busy",
	"could not find",
}

// classify turns ffmpeg stderr output into a media sentinel error.
func classify(stderr string, err error) error {
	msg := strings.ToLower(stderr)
	for _, marker := range permissionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", media.ErrPermissionDenied, lastLine(stderr))
		}
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", media.ErrDeviceUnavailable, lastLine(stderr))
		}
	}
	if err == nil {
		return nil
	}
	if tail := lastLine(stderr); tail != "" {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail)
	}
	return fmt.Errorf("ffmpeg: %w", err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
