// Package worker implements the stateless worker runtime: a loop that
// requests a task, dispatches on its kind, executes it, and reports
// completion, until told to exit.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yashch22/mrcore/internal/mrapi"
	"github.com/yashch22/mrcore/internal/mrrpc"
	"github.com/yashch22/mrcore/internal/rpcwire"
)

// App bundles the user-supplied transforms that are this core's only
// extension point.
type App struct {
	Map    mrapi.MapFunc
	Reduce mrapi.ReduceFunc
}

// Worker loops against one coordinator endpoint until EXIT.
type Worker struct {
	id   string
	addr string
	app  App
	log  zerolog.Logger

	pollInterval time.Duration
	ioTimeout    time.Duration
}

// Option configures a Worker at construction time.
type Option func(*Worker)

func WithLogger(log zerolog.Logger) Option { return func(w *Worker) { w.log = log } }

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

func WithIOTimeout(d time.Duration) Option {
	return func(w *Worker) { w.ioTimeout = d }
}

// New builds a Worker with the given opaque id, coordinator address,
// and user transforms.
func New(id, addr string, app App, opts ...Option) *Worker {
	w := &Worker{
		id:           id,
		addr:         addr,
		app:          app,
		log:          zerolog.Nop(),
		pollInterval: 200 * time.Millisecond,
		ioTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the worker's main loop until the coordinator replies
// EXIT or ctx is cancelled. A failed request_task call is retried with
// a doubling backoff (100ms up to 2s); Run does not return on an RPC
// error.
func (w *Worker) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := w.requestTask()
		if err != nil {
			w.log.Warn().Err(err).Dur("backoff", backoff).Msg("request_task failed, retrying")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		switch result.Reply {
		case mrrpc.ReplyAssignMap:
			success := w.runMap(result.TaskID, result.InputFile, result.R)
			w.reportCompletion(mrrpc.TaskKindMap, result.TaskID, success)

		case mrrpc.ReplyAssignReduce:
			success := w.runReduce(result.TaskID, result.M)
			w.reportCompletion(mrrpc.TaskKindReduce, result.TaskID, success)

		case mrrpc.ReplyWait:
			if !sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}

		case mrrpc.ReplyExit:
			w.log.Info().Msg("job done, exiting")
			return nil
		}
	}
}

func (w *Worker) requestTask() (mrrpc.RequestTaskResult, error) {
	var result mrrpc.RequestTaskResult
	err := rpcwire.Call(w.addr, mrrpc.MethodRequestTask, mrrpc.RequestTaskParams{WorkerID: w.id}, &result, w.ioTimeout)
	return result, err
}

func (w *Worker) reportCompletion(kind mrrpc.TaskKind, id int, success bool) {
	params := mrrpc.CompleteTaskParams{
		WorkerID: w.id,
		TaskKind: kind,
		TaskID:   id,
		Success:  success,
	}
	var result mrrpc.CompleteTaskResult
	if err := rpcwire.Call(w.addr, mrrpc.MethodCompleteTask, params, &result, w.ioTimeout); err != nil {
		// The coordinator will notice via timeout and reassign
		// regardless; nothing more to do here.
		w.log.Warn().Err(err).Str("task_kind", string(kind)).Int("task_id", id).Msg("complete_task failed")
	}
}

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 2 * time.Second
)

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
