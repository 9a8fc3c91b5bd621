// Package coordinator owns the task registry, the phase machine, the
// pull-based assignment policy, and the timeout-driven liveness
// detector. Every mutation to the registry runs under a single mutex:
// contention is minimal (one short critical section per RPC), and a
// single lock makes the registry's invariants trivially enforceable
// without a lock-ordering problem to worry about.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yashch22/mrcore/internal/config"
	"github.com/yashch22/mrcore/internal/discovery"
	"github.com/yashch22/mrcore/internal/mrrpc"
	"github.com/yashch22/mrcore/internal/rpcwire"
	"github.com/yashch22/mrcore/internal/task"
)

// monitorTickCeiling caps the timeout monitor's wake cadence at 1s so a
// timed-out task is never left unreclaimed for long; the coordinator
// piggybacks its tick on the configured poll interval, clamped to that
// ceiling.
const monitorTickCeiling = time.Second

// drainDelay is how long Run waits after entering DONE before closing
// the listener, so workers mid-RPC observe EXIT cleanly rather than a
// refused connection.
const drainDelay = 500 * time.Millisecond

// Coordinator is the single trust anchor for task state. It treats
// every RPC as advisory: a worker is never trusted to be correct about
// a task's final state until CompleteTask's checks pass.
type Coordinator struct {
	mu sync.Mutex

	mapTasks    []*task.Record
	reduceTasks []*task.Record
	m, r        int
	phase       task.Phase

	taskTimeout time.Duration
	pollTick    time.Duration

	log            zerolog.Logger
	rendezvousPath string

	doneOnce sync.Once
	doneCh   chan struct{}
}

// New builds a Coordinator with M map tasks (one per file, in
// argument order) and R reduce tasks; every task record is created up
// front at startup, never lazily.
func New(files []string, r int, cfg config.Config, log zerolog.Logger) *Coordinator {
	mapTasks := make([]*task.Record, len(files))
	for i, f := range files {
		mapTasks[i] = &task.Record{Kind: task.Map, ID: i, InputFile: f}
	}
	reduceTasks := make([]*task.Record, r)
	for i := range reduceTasks {
		reduceTasks[i] = &task.Record{Kind: task.Reduce, ID: i}
	}

	tick := cfg.PollInterval
	if tick <= 0 || tick > monitorTickCeiling {
		tick = monitorTickCeiling
	}

	return &Coordinator{
		mapTasks:       mapTasks,
		reduceTasks:    reduceTasks,
		m:              len(files),
		r:              r,
		phase:          task.MapPhase,
		taskTimeout:    cfg.TaskTimeout,
		pollTick:       tick,
		log:            log,
		rendezvousPath: discovery.DefaultPath,
		doneCh:         make(chan struct{}),
	}
}

// RequestTask implements the request_task RPC. The entire handler
// executes under c.mu.
func (c *Coordinator) RequestTask(p mrrpc.RequestTaskParams) (mrrpc.RequestTaskResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapTimeoutsLocked()
	c.advancePhaseLocked()

	switch c.phase {
	case task.MapPhase:
		if t := firstIdle(c.mapTasks); t != nil {
			c.assignLocked(t, p.WorkerID)
			return mrrpc.RequestTaskResult{
				Reply:     mrrpc.ReplyAssignMap,
				TaskID:    t.ID,
				InputFile: t.InputFile,
				R:         c.r,
			}, nil
		}
		return mrrpc.RequestTaskResult{Reply: mrrpc.ReplyWait}, nil

	case task.ReducePhase:
		if t := firstIdle(c.reduceTasks); t != nil {
			c.assignLocked(t, p.WorkerID)
			return mrrpc.RequestTaskResult{
				Reply:  mrrpc.ReplyAssignReduce,
				TaskID: t.ID,
				M:      c.m,
			}, nil
		}
		return mrrpc.RequestTaskResult{Reply: mrrpc.ReplyWait}, nil

	default: // task.Done
		return mrrpc.RequestTaskResult{Reply: mrrpc.ReplyExit}, nil
	}
}

func (c *Coordinator) assignLocked(t *task.Record, workerID string) {
	t.Assign(workerID, time.Now())
	c.log.Info().
		Str("task_kind", t.Kind.String()).
		Int("task_id", t.ID).
		Str("worker_id", workerID).
		Msg("task assigned")
}

// CompleteTask implements the complete_task RPC. A stale completion —
// one whose reporter no longer matches the recorded assignment, or
// whose task is already COMPLETED — is acknowledged but changes no
// state; this is the sole mechanism preventing a
// timed-out-but-still-alive worker from corrupting the registry.
func (c *Coordinator) CompleteTask(p mrrpc.CompleteTaskParams) (mrrpc.CompleteTaskResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.tasksForKindLocked(p.TaskKind)
	if err != nil {
		return mrrpc.CompleteTaskResult{}, err
	}
	if p.TaskID < 0 || p.TaskID >= len(tasks) {
		return mrrpc.CompleteTaskResult{}, fmt.Errorf("coordinator: task id %d out of range for %s", p.TaskID, p.TaskKind)
	}
	t := tasks[p.TaskID]

	switch {
	case t.Status == task.Completed:
		// Idempotent: already finalized, nothing to do.

	case p.Success:
		if t.Status == task.InProgress && t.WorkerID == p.WorkerID {
			t.Complete()
			c.log.Info().
				Str("task_kind", string(p.TaskKind)).
				Int("task_id", p.TaskID).
				Str("worker_id", p.WorkerID).
				Msg("task completed")
		} else {
			c.log.Debug().
				Str("task_kind", string(p.TaskKind)).
				Int("task_id", p.TaskID).
				Str("worker_id", p.WorkerID).
				Msg("ignoring stale completion")
		}

	default:
		if t.Status == task.InProgress && t.WorkerID == p.WorkerID {
			t.Reset()
			c.log.Warn().
				Str("task_kind", string(p.TaskKind)).
				Int("task_id", p.TaskID).
				Str("worker_id", p.WorkerID).
				Msg("task reported failure, reset to idle")
		}
	}

	c.advancePhaseLocked()
	return mrrpc.CompleteTaskResult{Acknowledged: true}, nil
}

func (c *Coordinator) tasksForKindLocked(kind mrrpc.TaskKind) ([]*task.Record, error) {
	switch kind {
	case mrrpc.TaskKindMap:
		return c.mapTasks, nil
	case mrrpc.TaskKindReduce:
		return c.reduceTasks, nil
	default:
		return nil, fmt.Errorf("coordinator: unknown task kind %q", kind)
	}
}

// advancePhaseLocked applies the phase transition rules: REDUCE_PHASE
// is entered only once every map task is COMPLETED, and DONE only once
// every reduce task is COMPLETED. It runs at the tail of CompleteTask,
// so Done() reflects the latest completion immediately rather than
// only after the next RequestTask poll, and at the start of
// RequestTask, before a task is chosen.
func (c *Coordinator) advancePhaseLocked() {
	for {
		switch c.phase {
		case task.MapPhase:
			if !allCompleted(c.mapTasks) {
				return
			}
			c.phase = task.ReducePhase
			c.log.Info().Msg("map phase complete, entering reduce phase")

		case task.ReducePhase:
			if !allCompleted(c.reduceTasks) {
				return
			}
			c.phase = task.Done
			c.log.Info().Msg("reduce phase complete, job done")
			c.doneOnce.Do(func() { close(c.doneCh) })
			return

		default: // task.Done
			return
		}
	}
}

// reapTimeoutsLocked reclaims any IN_PROGRESS task of the current
// phase whose start_time is older than taskTimeout. Only the active
// phase is scanned: a reduce task is never IN_PROGRESS while the
// coordinator is still in MAP_PHASE, so there is nothing stale to reap
// outside the active set.
func (c *Coordinator) reapTimeoutsLocked() {
	var tasks []*task.Record
	switch c.phase {
	case task.MapPhase:
		tasks = c.mapTasks
	case task.ReducePhase:
		tasks = c.reduceTasks
	default:
		return
	}

	now := time.Now()
	for _, t := range tasks {
		if t.Status == task.InProgress && now.Sub(t.StartTime) >= c.taskTimeout {
			c.log.Warn().
				Str("task_kind", t.Kind.String()).
				Int("task_id", t.ID).
				Str("worker_id", t.WorkerID).
				Msg("task timed out, reclaiming")
			t.Reset()
		}
	}
}

// Done reports whether the job has reached DONE.
func (c *Coordinator) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == task.Done
}

func firstIdle(tasks []*task.Record) *task.Record {
	for _, t := range tasks {
		if t.Status == task.Idle {
			return t
		}
	}
	return nil
}

func allCompleted(tasks []*task.Record) bool {
	for _, t := range tasks {
		if t.Status != task.Completed {
			return false
		}
	}
	return true
}

// handle is the rpcwire.Handler bound to the RPC surface.
func (c *Coordinator) handle(method string, raw json.RawMessage) (interface{}, error) {
	switch method {
	case mrrpc.MethodRequestTask:
		var p mrrpc.RequestTaskParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("coordinator: decode request_task params: %w", err)
		}
		return c.RequestTask(p)

	case mrrpc.MethodCompleteTask:
		var p mrrpc.CompleteTaskParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("coordinator: decode complete_task params: %w", err)
		}
		return c.CompleteTask(p)

	default:
		return nil, fmt.Errorf("coordinator: unknown method %q", method)
	}
}

// Run binds the listener, publishes the rendezvous file, starts the
// timeout monitor, and serves RPCs until the job reaches DONE. It
// blocks until ctx is cancelled or the job completes and the drain
// delay elapses.
func (c *Coordinator) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("coordinator: listen: %w", err)
	}
	defer ln.Close()

	if err := discovery.Publish(c.rendezvousPath, ln.Addr().String()); err != nil {
		return err
	}
	defer discovery.Remove(c.rendezvousPath)

	server := &rpcwire.Server{
		Listener:  ln,
		Handler:   c.handle,
		IOTimeout: 10 * time.Second,
		Log:       c.log,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go c.monitorTimeouts(monitorCtx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-serveErr:
		return fmt.Errorf("coordinator: serve: %w", err)
	case <-c.doneCh:
		c.log.Info().Dur("drain", drainDelay).Msg("job done, draining before shutdown")
		select {
		case <-time.After(drainDelay):
		case <-ctx.Done():
		}
		return nil
	}
}

func (c *Coordinator) monitorTimeouts(ctx context.Context) {
	ticker := time.NewTicker(c.pollTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.reapTimeoutsLocked()
			c.mu.Unlock()
		}
	}
}
