package coordinator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yashch22/mrcore/internal/config"
	"github.com/yashch22/mrcore/internal/mrrpc"
	"github.com/yashch22/mrcore/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCoordinator(files []string, r int, timeout time.Duration) *Coordinator {
	cfg := config.Config{TaskTimeout: timeout, PollInterval: 50 * time.Millisecond}
	return New(files, r, cfg, zerolog.Nop())
}

// TestAssignmentScansInIDOrder exercises the assignment policy: the
// first IDLE task of the current phase, in id order.
func TestAssignmentScansInIDOrder(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt", "b.txt"}, 1, time.Minute)

	r1, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignMap, r1.Reply)
	require.Equal(t, 0, r1.TaskID)

	r2, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w2"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignMap, r2.Reply)
	require.Equal(t, 1, r2.TaskID)

	// Both map tasks are now IN_PROGRESS: a third worker must WAIT.
	r3, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w3"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyWait, r3.Reply)
}

// TestPhaseAdvancesOnlyAfterAllMapsComplete checks that reduce work is
// never handed out while any map task is outstanding.
func TestPhaseAdvancesOnlyAfterAllMapsComplete(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt", "b.txt"}, 1, time.Minute)

	r1, _ := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	_, _ = c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w2"})

	_, err := c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: r1.TaskID, Success: true,
	})
	require.NoError(t, err)

	// One map task still IN_PROGRESS: must still WAIT, never ASSIGN_REDUCE.
	r3, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w3"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyWait, r3.Reply)
}

// TestFullJobReachesDone drives a single map task and single reduce
// task to completion and checks Done() and EXIT.
func TestFullJobReachesDone(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, time.Minute)

	m, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignMap, m.Reply)

	_, err = c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: m.TaskID, Success: true,
	})
	require.NoError(t, err)

	red, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignReduce, red.Reply)
	require.Equal(t, 1, red.M)
	require.False(t, c.Done())

	_, err = c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindReduce, TaskID: red.TaskID, Success: true,
	})
	require.NoError(t, err)
	require.True(t, c.Done())

	exit, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w2"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyExit, exit.Reply)
}

// TestFailedTaskIsReassignable covers the negative completion path: a
// success=false report resets the task to IDLE for reassignment.
func TestFailedTaskIsReassignable(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, time.Minute)

	m, _ := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	_, err := c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: m.TaskID, Success: false,
	})
	require.NoError(t, err)

	again, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w2"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignMap, again.Reply)
	require.Equal(t, m.TaskID, again.TaskID)
}

// TestStaleCompletionIsIgnored is S4: a late success report from a
// worker whose task was already reassigned and completed must not
// perturb coordinator state.
func TestStaleCompletionIsIgnored(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, 20*time.Millisecond)

	m, _ := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})
	time.Sleep(30 * time.Millisecond)

	c.mu.Lock()
	c.reapTimeoutsLocked()
	c.mu.Unlock()

	again, err := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w2"})
	require.NoError(t, err)
	require.Equal(t, mrrpc.ReplyAssignMap, again.Reply)

	_, err = c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w2", TaskKind: mrrpc.TaskKindMap, TaskID: again.TaskID, Success: true,
	})
	require.NoError(t, err)

	// w1's late report arrives after w2 already completed the task.
	_, err = c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: m.TaskID, Success: true,
	})
	require.NoError(t, err)

	c.mu.Lock()
	status := c.mapTasks[m.TaskID].Status
	owner := c.mapTasks[m.TaskID].WorkerID
	c.mu.Unlock()
	require.Equal(t, task.Completed, status)
	require.Empty(t, owner)
}

// TestDoubleCompletionIsIdempotent: applying CompleteTask(success=true)
// twice from the same worker leaves state unchanged after the first.
func TestDoubleCompletionIsIdempotent(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, time.Minute)
	m, _ := c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})

	for i := 0; i < 2; i++ {
		_, err := c.CompleteTask(mrrpc.CompleteTaskParams{
			WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: m.TaskID, Success: true,
		})
		require.NoError(t, err)
	}

	c.mu.Lock()
	status := c.mapTasks[m.TaskID].Status
	c.mu.Unlock()
	require.Equal(t, task.Completed, status)
}

// TestTimeoutReclaimsTask is S3: an IN_PROGRESS task past TASK_TIMEOUT
// is reset to IDLE without a completion report.
func TestTimeoutReclaimsTask(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, 10*time.Millisecond)
	_, _ = c.RequestTask(mrrpc.RequestTaskParams{WorkerID: "w1"})

	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	c.reapTimeoutsLocked()
	status := c.mapTasks[0].Status
	c.mu.Unlock()

	require.Equal(t, task.Idle, status)
}

func TestCompleteTaskRejectsOutOfRangeID(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, time.Minute)
	_, err := c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: mrrpc.TaskKindMap, TaskID: 99, Success: true,
	})
	require.Error(t, err)
}

func TestCompleteTaskRejectsUnknownKind(t *testing.T) {
	c := newTestCoordinator([]string{"a.txt"}, 1, time.Minute)
	_, err := c.CompleteTask(mrrpc.CompleteTaskParams{
		WorkerID: "w1", TaskKind: "bogus", TaskID: 0, Success: true,
	})
	require.Error(t, err)
}
