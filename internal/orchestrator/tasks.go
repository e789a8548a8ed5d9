package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
)

// taskGroup runs uploads in the background. Spawning never blocks: the
// concurrency slot is acquired inside the task.
type taskGroup struct {
	ctx context.Context
	wg  conc.WaitGroup
	sem *semaphore.Weighted
	log zerolog.Logger
}

func newTaskGroup(ctx context.Context, concurrency int, log zerolog.Logger) *taskGroup {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &taskGroup{
		ctx: ctx,
		sem: semaphore.NewWeighted(int64(concurrency)),
		log: log,
	}
}

// Go runs fn as a tracked task. onFailure is called when the task could not
// start or when fn panicked.
func (g *taskGroup) Go(name string, fn func(ctx context.Context, log zerolog.Logger), onFailure func(err error)) {
	log := g.log.With().Str("task", name).Str("task_id", uuid.NewString()).Logger()

	g.wg.Go(func() {
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			log.Warn().Err(err).Msg("task dropped before start")
			onFailure(fmt.Errorf("task not started: %w", err))
			return
		}
		defer g.sem.Release(1)

		var pc panics.Catcher
		pc.Try(func() { fn(g.ctx, log) })
		if r := pc.Recovered(); r != nil {
			log.Error().Interface("panic", r.Value).Bytes("stack", r.Stack).Msg("task panicked")
			onFailure(r.AsError())
		}
	})
}

// Run executes fn inline while holding a concurrency slot. A panic in fn is
// recovered and returned as an error.
func (g *taskGroup) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	var pc panics.Catcher
	pc.Try(func() { fn(ctx) })
	if r := pc.Recovered(); r != nil {
		g.log.Error().Interface("panic", r.Value).Bytes("stack", r.Stack).Msg("inline task panicked")
		return r.AsError()
	}
	return nil
}

// Wait blocks until every spawned task finished or ctx is done.
func (g *taskGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
