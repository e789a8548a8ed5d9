package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/media"
)

const defaultStopTimeout = 5 * time.Second

// Recorder runs one ffmpeg process for the lifetime of a single chunk.
type Recorder struct {
	newCmd      func(args ...string) *exec.Cmd
	args        []string
	mimeType    string
	stream      *Stream
	stopTimeout time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	state    media.RecorderState
	started  bool
	stopping bool
	flushed  sync.Once
	onData   func([]byte)
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	data     []byte
	stderr   bytes.Buffer
	waitErr  error
	done     chan struct{}
}

func (r *Recorder) MimeType() string { return r.mimeType }

func (r *Recorder) OnData(fn func(data []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

func (r *Recorder) State() media.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("recorder already started")
	}

	cmd := r.newCmd(r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = &lockedWriter{mu: &r.mu, buf: &r.stderr}

	if err := cmd.Start(); err != nil {
		return classify("", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.started = true
	r.state = media.RecorderRecording
	r.done = make(chan struct{})

	go r.wait(stdout)
	return nil
}

func (r *Recorder) wait(stdout io.Reader) {
	// all reads must finish before Wait
	data, readErr := io.ReadAll(stdout)
	waitErr := r.cmd.Wait()

	r.mu.Lock()
	r.state = media.RecorderInactive
	r.data = data
	if waitErr == nil {
		waitErr = readErr
	}
	r.waitErr = waitErr
	stopping := r.stopping
	stderr := r.stderr.String()
	r.mu.Unlock()

	if stopping {
		close(r.done)
		return
	}

	r.log.Warn().Err(waitErr).Str("stderr", lastLine(stderr)).Msg("recorder exited unexpectedly")
	r.flush()
	close(r.done)
	// ended handlers may call Stop, which waits on done
	if r.stream != nil {
		r.stream.deviceLost()
	}
}

// Stop asks ffmpeg to finish the container, waits for the process and hands
// the buffered WebM to the data handler.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	done := r.done
	if r.stopping || r.state != media.RecorderRecording {
		r.mu.Unlock()
		<-done
		r.flush()
		return nil
	}
	r.stopping = true
	stdin := r.stdin
	cmd := r.cmd
	r.mu.Unlock()

	_, _ = io.WriteString(stdin, "q\n")
	_ = stdin.Close()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.log.Warn().Dur("timeout", r.stopTimeout).Msg("recorder did not exit, killing")
		_ = cmd.Process.Kill()
		<-done
	}

	r.flush()

	r.mu.Lock()
	err, size := r.waitErr, len(r.data)
	r.mu.Unlock()
	if err != nil && size == 0 {
		return fmt.Errorf("recorder exited: %w", err)
	}
	return nil
}

// flush hands the buffered output to the data handler exactly once.
// Concurrent callers block until delivery is done.
func (r *Recorder) flush() {
	r.flushed.Do(func() {
		r.mu.Lock()
		data := r.data
		fn := r.onData
		r.mu.Unlock()

		if len(data) > 0 && fn != nil {
			fn(data)
		}
	})
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// keep only a bounded tail for diagnostics
	if w.buf.Len() > 64*1024 {
		w.buf.Reset()
	}
	return w.buf.Write(p)
}

// Factory creates ffmpeg recorders and answers MIME capability questions
// from the encoder list of the installed binary.
type Factory struct {
	path        string
	builder     *CommandBuilder
	run         runFunc
	stopTimeout time.Duration
	log         zerolog.Logger

	encodersOnce sync.Once
	encoders     map[string]bool
}

func NewFactory(path string, log zerolog.Logger) *Factory {
	return &Factory{
		path:        path,
		builder:     NewCommandBuilder(),
		run:         execRunner(path),
		stopTimeout: defaultStopTimeout,
		log:         log.With().Str("component", "ffmpeg-recorder").Logger(),
	}
}

func (f *Factory) loadEncoders() map[string]bool {
	f.encodersOnce.Do(func() {
		f.encoders = map[string]bool{}
		ctx, cancel := contextWithTimeout(defaultProbeTimeout)
		defer cancel()
		stdout, _, err := f.run(ctx, f.builder.Encoders())
		if err != nil {
			f.log.Warn().Err(err).Msg("could not list ffmpeg encoders")
			return
		}
		f.encoders = parseEncoders(string(stdout))
	})
	return f.encoders
}

func (f *Factory) IsTypeSupported(mimeType string) bool {
	if containerOf(mimeType) != "video/webm" {
		return false
	}
	encoders := f.loadEncoders()
	for _, codec := range parseCodecs(mimeType) {
		encoder, known := codecEncoders[codec]
		if !known || !encoders[encoder] {
			return false
		}
	}
	return true
}

func (f *Factory) NewRecorder(stream media.Stream, opts media.RecorderOptions) (media.Recorder, error) {
	if stream == nil || !stream.Active() {
		return nil, fmt.Errorf("new recorder: %w", media.ErrTrackEnded)
	}
	s, _ := stream.(*Stream)
	path := f.path
	return &Recorder{
		newCmd:      func(args ...string) *exec.Cmd { return exec.Command(path, args...) },
		args:        f.builder.Record(stream.InputArgs(), stream.HasAudio(), opts),
		mimeType:    opts.MimeType,
		stream:      s,
		stopTimeout: f.stopTimeout,
		log:         f.log,
	}, nil
}
