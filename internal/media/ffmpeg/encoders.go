package ffmpeg

import (
	"bufio"
	"context"
	"strings"
	"time"
)

// parseEncoders reads `ffmpeg -encoders` output. Encoder lines look like
// " V....D libvpx-vp9           libvpx VP9".
func parseEncoders(out string) map[string]bool {
	encoders := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	pastHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			pastHeader = true
			continue
		}
		if !pastHeader {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
