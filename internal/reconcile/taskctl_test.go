package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

func TestTaskControllerStartPromotesQueuedTask(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusQueued)

	ctl := NewTaskController(m, task.ID, time.Minute, testLog())
	require.NoError(t, ctl.Start(ctx, task, 42, "account-1", "actx-1"))

	stored := m.tasks[task.ID]
	assert.Equal(t, domain.TaskStatusProcessing, stored.Status)
	assert.Equal(t, 42, stored.TotalCount)
	assert.Equal(t, 0, stored.ProcessedCount)
	assert.Equal(t, "account-1", stored.AccountID)
	assert.Equal(t, "actx-1", stored.IntegrationContextID)
}

func TestTaskControllerStartKeepsExistingLinks(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)
	task.AccountID = "account-old"
	task.IntegrationContextID = "actx-old"
	m.tasks[task.ID].AccountID = "account-old"
	m.tasks[task.ID].IntegrationContextID = "actx-old"

	ctl := NewTaskController(m, task.ID, time.Minute, testLog())
	require.NoError(t, ctl.Start(ctx, task, 7, "account-new", "actx-new"))

	stored := m.tasks[task.ID]
	assert.Equal(t, domain.TaskStatusProcessing, stored.Status)
	assert.Equal(t, "account-old", stored.AccountID, "links set on a previous run are never overwritten")
	assert.Equal(t, "actx-old", stored.IntegrationContextID)
}

func TestTaskControllerReportProgressIsThrottled(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	current := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	ctl := NewTaskController(m, task.ID, 10*time.Second, testLog())
	ctl.now = func() time.Time { return current }

	require.NoError(t, ctl.Start(ctx, task, 100, "account-1", "actx-1"))

	// Inside the interval nothing is written.
	current = current.Add(3 * time.Second)
	ctl.ReportProgress(ctx, 5)
	assert.Equal(t, 0, m.tasks[task.ID].ProcessedCount)

	current = current.Add(8 * time.Second)
	ctl.ReportProgress(ctx, 17)
	assert.Equal(t, 17, m.tasks[task.ID].ProcessedCount)

	// The write above reset the window.
	current = current.Add(2 * time.Second)
	ctl.ReportProgress(ctx, 25)
	assert.Equal(t, 17, m.tasks[task.ID].ProcessedCount)
}

func TestTaskControllerReportProgressIgnoresWriteFailures(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	current := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	ctl := NewTaskController(m, task.ID, time.Second, testLog())
	ctl.now = func() time.Time { return current }
	require.NoError(t, ctl.Start(ctx, task, 10, "account-1", "actx-1"))

	m.failTaskUpdate = true
	current = current.Add(5 * time.Second)
	ctl.ReportProgress(ctx, 3)
	// No panic, no error surfaced; the run continues.
	assert.Equal(t, 0, m.tasks[task.ID].ProcessedCount)
}

type failingTasks struct {
	store.TaskRepository
}

func (failingTasks) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return nil, fmt.Errorf("store unavailable")
}

func TestTaskControllerStillProcessing(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	ctl := NewTaskController(m, task.ID, time.Minute, testLog())
	assert.True(t, ctl.StillProcessing(ctx))

	m.tasks[task.ID].Status = domain.TaskStatusCancelled
	assert.False(t, ctl.StillProcessing(ctx))

	missing := NewTaskController(m, "no-such-task", time.Minute, testLog())
	assert.False(t, missing.StillProcessing(ctx))

	failing := NewTaskController(failingTasks{}, task.ID, time.Minute, testLog())
	assert.False(t, failing.StillProcessing(ctx), "a status read failure aborts the loop instead of racing a cancellation")
}

func TestTaskControllerFail(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	ctl := NewTaskController(m, task.ID, time.Minute, testLog())
	cause := fmt.Errorf("cannot parse uploaded file")
	err := ctl.Fail(ctx, cause, []string{"2024-03-01_101", "2024-03-01_102"})
	assert.Same(t, cause, err, "Fail returns the cause for the caller to propagate")

	stored := m.tasks[task.ID]
	assert.Equal(t, domain.TaskStatusError, stored.Status)
	assert.Equal(t, "cannot parse uploaded file", stored.Meta.ErrorMessage)
	assert.Equal(t, []string{"2024-03-01_101", "2024-03-01_102"}, stored.Meta.DuplicatedTransactions)
}

func TestTaskControllerComplete(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	ctl := NewTaskController(m, task.ID, time.Minute, testLog())
	require.NoError(t, ctl.Complete(ctx, 38, []string{"2024-03-01_101"}))

	stored := m.tasks[task.ID]
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 38, stored.ProcessedCount)
	assert.Equal(t, []string{"2024-03-01_101"}, stored.Meta.DuplicatedTransactions)
	assert.Empty(t, stored.Meta.ErrorMessage)
}
