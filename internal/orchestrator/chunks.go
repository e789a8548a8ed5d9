package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"proctorcap/internal/capture"
	"proctorcap/internal/models"
)

// ChunkSession is the capture surface the chunk orchestrator drives.
type ChunkSession interface {
	Start(ctx context.Context, candidateID, assessmentID string, onChunk capture.ChunkHandler) error
	Stop() error
	Cleanup()
	Identity() models.SessionIdentity
}

// ChunkOrchestrator coordinates one recording session (video or screen)
// with its uploader. Uploads of chunk N run while chunk N+1 records.
type ChunkOrchestrator struct {
	*tracker
	session ChunkSession
}

func NewChunkOrchestrator(ctx context.Context, kind models.MediaKind, session ChunkSession, concurrency int, callbacks Callbacks, log zerolog.Logger) *ChunkOrchestrator {
	return &ChunkOrchestrator{
		tracker: newTracker(ctx, kind, concurrency, callbacks, log),
		session: session,
	}
}

func (o *ChunkOrchestrator) Kind() models.MediaKind { return o.kind }

func (o *ChunkOrchestrator) StartRecording(ctx context.Context, candidateID, assessmentID string) error {
	if err := o.session.Start(ctx, candidateID, assessmentID, o.handleChunk); err != nil {
		// the running session is untouched
		if errors.Is(err, capture.ErrSessionActive) {
			return err
		}
		o.fail(err)
		return err
	}

	identity := o.session.Identity()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = true
		s.SessionID = identity.SessionID
		s.Error = ""
	})
	return nil
}

func (o *ChunkOrchestrator) StopRecording() error {
	err := o.session.Stop()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = false
	})
	return err
}

// Cleanup releases the device. Counters are kept; in-flight uploads
// continue.
func (o *ChunkOrchestrator) Cleanup() {
	o.session.Cleanup()
	o.update(func(s *models.UploadStatus) {
		s.IsRecording = false
		s.SessionID = ""
		s.LastChunkNumber = 0
	})
}

// HandleDeviceLost records a session that stopped on its own.
func (o *ChunkOrchestrator) HandleDeviceLost(err error) {
	o.log.Warn().Err(err).Msg("recording stopped by device loss")
	o.fail(err)
}

func (o *ChunkOrchestrator) handleChunk(chunk models.Chunk) {
	meta := chunk.Metadata
	o.update(func(s *models.UploadStatus) {
		if meta.ChunkNumber > s.LastChunkNumber {
			s.LastChunkNumber = meta.ChunkNumber
		}
	})

	u := o.begin()
	if u == nil {
		o.log.Debug().Int("chunk", meta.ChunkNumber).Msg("no upload destination yet, chunk skipped")
		o.settle(outcome{result: models.SkippedUpload(), size: len(chunk.Data), chunk: meta.ChunkNumber})
		return
	}

	dispatched := time.Now()
	var settled bool
	o.tasks.Go(fmt.Sprintf("upload-%s-%d", o.kind, meta.ChunkNumber), func(ctx context.Context, log zerolog.Logger) {
		result := u.UploadChunk(ctx, chunk, nil)
		settled = true
		log.Debug().
			Str("session_id", meta.SessionID).
			Int("chunk", meta.ChunkNumber).
			Str("key", result.Key).
			Bool("success", result.Success).
			Msg("chunk upload settled")
		o.settle(outcome{
			result:  result,
			size:    len(chunk.Data),
			chunk:   meta.ChunkNumber,
			elapsed: time.Since(dispatched),
			started: true,
		})
	}, func(err error) {
		if settled {
			return
		}
		o.settle(outcome{
			result:  models.FailedUpload(err, 0),
			size:    len(chunk.Data),
			chunk:   meta.ChunkNumber,
			elapsed: time.Since(dispatched),
			started: true,
		})
	})
}
