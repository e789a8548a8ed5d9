package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/media"
)

const defaultProbeTimeout = 10 * time.Second

// runFunc executes ffmpeg with args and returns stdout and stderr.
type runFunc func(ctx context.Context, args []string) (stdout, stderr []byte, err error)

func execRunner(path string) runFunc {
	return func(ctx context.Context, args []string) ([]byte, []byte, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		return stdout.Bytes(), stderr.Bytes(), err
	}
}

// Source acquires a camera (with optional microphone) or a display through
// a one frame ffmpeg probe.
type Source struct {
	name         string
	video        Device
	audio        Device
	builder      *CommandBuilder
	run          runFunc
	probeTimeout time.Duration
	log          zerolog.Logger
}

func NewCameraSource(path string, camera, microphone Device, log zerolog.Logger) *Source {
	return &Source{
		name:         "camera",
		video:        camera,
		audio:        microphone,
		builder:      NewCommandBuilder(),
		run:          execRunner(path),
		probeTimeout: defaultProbeTimeout,
		log:          log.With().Str("component", "camera-source").Logger(),
	}
}

// NewDisplaySource captures a display surface. Display streams are video only.
func NewDisplaySource(path string, display Device, log zerolog.Logger) *Source {
	return &Source{
		name:         "display",
		video:        display,
		builder:      NewCommandBuilder(),
		run:          execRunner(path),
		probeTimeout: defaultProbeTimeout,
		log:          log.With().Str("component", "display-source").Logger(),
	}
}

func (s *Source) inputArgs() []string {
	return append(s.video.Args(), s.audio.Args()...)
}

func (s *Source) Acquire(ctx context.Context) (media.Stream, error) {
	if s.video.Name == "" {
		return nil, fmt.Errorf("%s: %w: no device configured", s.name, media.ErrDeviceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	input := s.inputArgs()
	_, stderr, err := s.run(ctx, s.builder.Probe(input))
	if classified := classify(string(stderr), err); classified != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: probe: %w", s.name, ctx.Err())
		}
		s.log.Warn().Err(classified).Str("device", s.video.Name).Msg("device acquisition failed")
		return nil, fmt.Errorf("%s: %w", s.name, classified)
	}

	stream := newStream(input, s.audio.Name != "")
	s.log.Info().Str("stream_id", stream.ID()).Str("device", s.video.Name).Bool("audio", stream.HasAudio()).Msg("stream acquired")
	return stream, nil
}

// Grabber captures stills with ffmpeg.
type Grabber struct {
	builder *CommandBuilder
	run     runFunc
	timeout time.Duration
}

func NewGrabber(path string) *Grabber {
	return &Grabber{builder: NewCommandBuilder(), run: execRunner(path), timeout: defaultProbeTimeout}
}

func (g *Grabber) Grab(ctx context.Context, stream media.Stream) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// audio inputs are irrelevant for a still; keep only the first input
	input := stream.InputArgs()
	if first := firstInput(input); len(first) > 0 {
		input = first
	}

	stdout, stderr, err := g.run(ctx, g.builder.Frame(input))
	if classified := classify(string(stderr), err); classified != nil {
		if s, ok := stream.(*Stream); ok && media.IsPermissionDenied(classified) {
			s.deviceLost()
		}
		return nil, "", classified
	}
	if len(stdout) == 0 {
		return nil, "", fmt.Errorf("ffmpeg: empty frame")
	}
	return stdout, "image/jpeg", nil
}

// firstInput returns the args up to and including the first "-i <name>".
func firstInput(args []string) []string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			return args[:i+2]
		}
	}
	return nil
}
