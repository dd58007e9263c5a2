package inmemory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-reconciler/internal/jobs"
)

func TestQueueProcessesPublishedJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	handled := make(chan string, 1)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		handled <- job.GetID()
		return nil
	}))

	job := &jobs.ImportStatementJob{TaskID: "task-1"}
	require.NoError(t, q.PublishImportStatement(ctx, job))
	assert.NotEmpty(t, job.JobID)

	select {
	case id := <-handled:
		assert.Equal(t, job.JobID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never handled")
	}

	require.Eventually(t, func() bool {
		saved, err := store.GetJob(ctx, job.JobID)
		return err == nil && saved.Status == jobs.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueRetriesFailedJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return fmt.Errorf("transient failure")
	}))

	job := &jobs.ImportStatementJob{TaskID: "task-1", MaxRetries: 1}
	require.NoError(t, q.PublishImportStatement(ctx, job))

	require.Eventually(t, func() bool {
		saved, err := store.GetJob(ctx, job.JobID)
		return err == nil && saved.Status == jobs.JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(2), attempts.Load(), "initial attempt plus one retry")
	saved, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "transient failure", saved.Error)
}

func TestQueueRejectsJobWithoutTask(t *testing.T) {
	q := NewQueue(1, 1, nil)
	defer q.Close()

	err := q.PublishImportStatement(context.Background(), &jobs.ImportStatementJob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task id is required")
}

func TestQueuePublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())

	err := q.PublishImportStatement(context.Background(), &jobs.ImportStatementJob{TaskID: "task-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is closed")
}

func TestStoreListJobsFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i, taskID := range []string{"task-1", "task-1", "task-2"} {
		require.NoError(t, store.SaveJob(ctx, &jobs.ImportStatementJob{
			JobID:  fmt.Sprintf("job-%d", i),
			TaskID: taskID,
			Status: jobs.JobStatusPending,
		}))
	}

	byTask, err := store.ListJobs(ctx, jobs.JobFilter{TaskID: "task-1"})
	require.NoError(t, err)
	assert.Len(t, byTask, 2)

	limited, err := store.ListJobs(ctx, jobs.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, none)
}
