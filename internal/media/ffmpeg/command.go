package ffmpeg

import (
	"fmt"
	"strings"

	"proctorcap/internal/media"
)

// Device is one ffmpeg input: a demuxer and the device it opens.
type Device struct {
	Format string
	Name   string
}

func (d Device) Args() []string {
	if d.Name == "" {
		return nil
	}
	args := []string{}
	if d.Format != "" {
		args = append(args, "-f", d.Format)
	}
	return append(args, "-i", d.Name)
}

type CommandBuilder struct{}

func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{}
}

var baseArgs = []string{"-hide_banner", "-loglevel", "error"}

// Probe opens the inputs long enough to read one video frame.
func (b *CommandBuilder) Probe(input []string) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, "-nostdin")
	args = append(args, input...)
	return append(args, "-frames:v", "1", "-t", "1", "-f", "null", "-")
}

// Record encodes the inputs to a WebM stream on stdout. The process keeps
// reading stdin so that a "q" finishes the container cleanly.
func (b *CommandBuilder) Record(input []string, hasAudio bool, opts media.RecorderOptions) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, input...)

	videoCodec, audioCodec := codecsFor(opts.MimeType)

	if videoCodec != "" {
		args = append(args, "-c:v", videoCodec)
	}
	if opts.VideoBitsPerSecond > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%d", opts.VideoBitsPerSecond))
	}
	if videoCodec == "libvpx" || videoCodec == "libvpx-vp9" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}

	if !hasAudio {
		args = append(args, "-an")
	} else {
		if audioCodec != "" {
			args = append(args, "-c:a", audioCodec)
		}
		if opts.AudioBitsPerSecond > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%d", opts.AudioBitsPerSecond))
		}
	}

	return append(args, "-f", "webm", "pipe:1")
}

// Frame grabs a single JPEG frame to stdout.
func (b *CommandBuilder) Frame(input []string) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, "-nostdin")
	args = append(args, input...)
	return append(args, "-frames:v", "1", "-an", "-c:v", "mjpeg", "-f", "image2", "pipe:1")
}

// Encoders lists the encoders compiled into the binary.
func (b *CommandBuilder) Encoders() []string {
	return append(append([]string{}, baseArgs...), "-encoders")
}

var codecEncoders = map[string]string{
	"vp8":    "libvpx",
	"vp9":    "libvpx-vp9",
	"opus":   "libopus",
	"vorbis": "libvorbis",
}

var audioCodecs = map[string]bool{"opus": true, "vorbis": true}

// codecsFor maps a MIME type such as "video/webm;codecs=vp9,opus" to ffmpeg
// encoder names. Unknown or absent codecs map to "".
func codecsFor(mimeType string) (video, audio string) {
	for _, codec := range parseCodecs(mimeType) {
		encoder, ok := codecEncoders[codec]
		if !ok {
			continue
		}
		if audioCodecs[codec] {
			if audio == "" {
				audio = encoder
			}
		} else if video == "" {
			video = encoder
		}
	}
	return video, audio
}

func parseCodecs(mimeType string) []string {
	_, params, found := strings.Cut(mimeType, ";")
	if !found {
		return nil
	}
	params = strings.TrimSpace(params)
	value, ok := strings.CutPrefix(params, "codecs=")
	if !ok {
		return nil
	}
	value = strings.Trim(value, `"`)

	var codecs []string
	for _, c := range strings.Split(value, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if i := strings.Index(c, "."); i > 0 {
			c = c[:i]
		}
		if c != "" {
			codecs = append(codecs, c)
		}
	}
	return codecs
}

func containerOf(mimeType string) string {
	container, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(container))
}
