package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// DefaultProgressInterval bounds how often progress writes hit the
// store. A statement with tens of thousands of rows must not produce a
// history snapshot per row.
const DefaultProgressInterval = 10 * time.Second

// TaskController owns the task's state transitions during one run:
// start, throttled progress, cooperative cancellation checks and the
// terminal complete/fail writes. One controller is constructed per run;
// it carries no shared state between runs.
type TaskController struct {
	tasks  store.TaskRepository
	taskID string

	progressInterval time.Duration
	lastProgress     time.Time
	now              func() time.Time

	log zerolog.Logger
}

// NewTaskController creates a controller for the given task.
// A non-positive interval falls back to DefaultProgressInterval.
func NewTaskController(tasks store.TaskRepository, taskID string, progressInterval time.Duration, log zerolog.Logger) *TaskController {
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &TaskController{
		tasks:            tasks,
		taskID:           taskID,
		progressInterval: progressInterval,
		now:              time.Now,
		log:              log.With().Str("task_id", taskID).Logger(),
	}
}

// Start records the parsed transaction count, resets progress and links
// the resolved account/context to the task if not yet linked. A queued
// task is promoted to processing.
func (c *TaskController) Start(ctx context.Context, task *domain.Task, totalCount int, accountID, integrationContextID string) error {
	zero := 0
	upd := store.TaskUpdate{
		TotalCount:     &totalCount,
		ProcessedCount: &zero,
	}
	if task.Status == domain.TaskStatusQueued {
		processing := domain.TaskStatusProcessing
		upd.Status = &processing
	}
	if task.AccountID == "" {
		upd.AccountID = &accountID
	}
	if task.IntegrationContextID == "" {
		upd.IntegrationContextID = &integrationContextID
	}

	if _, err := c.tasks.UpdateTask(ctx, c.taskID, upd); err != nil {
		return err
	}
	c.lastProgress = c.now()
	return nil
}

// StillProcessing re-reads the task and reports whether the run may
// continue. The user can cancel the task at any time; this poll is the
// system's only cancellation mechanism, so the ingest loop calls it
// before every row.
func (c *TaskController) StillProcessing(ctx context.Context) bool {
	task, err := c.tasks.GetTask(ctx, c.taskID)
	if err != nil {
		c.log.Error().Err(err).Msg("Could not re-read task status, aborting processing loop")
		return false
	}
	if task == nil || task.Status != domain.TaskStatusProcessing {
		status := domain.TaskStatus("<missing>")
		if task != nil {
			status = task.Status
		}
		c.log.Info().Str("status", string(status)).Msg("Task status != processing. Aborting transaction processing loop")
		return false
	}
	return true
}

// ReportProgress writes processedCount=index, at most once per
// progress interval. Write failures are logged and never abort the run.
func (c *TaskController) ReportProgress(ctx context.Context, index int) {
	if c.now().Sub(c.lastProgress) <= c.progressInterval {
		return
	}
	c.lastProgress = c.now()

	if _, err := c.tasks.UpdateTask(ctx, c.taskID, store.TaskUpdate{ProcessedCount: &index}); err != nil {
		c.log.Warn().Err(err).Int("processed_count", index).Msg("Could not report task progress")
	}
}

// Fail marks the task as errored with a user-facing message (and the
// duplicate list when relevant), then returns cause so the caller can
// propagate it.
func (c *TaskController) Fail(ctx context.Context, cause error, duplicates []string) error {
	meta := domain.TaskMeta{}
	if task, err := c.tasks.GetTask(ctx, c.taskID); err == nil && task != nil {
		meta = task.Meta
	}
	meta.ErrorMessage = cause.Error()
	if len(duplicates) > 0 {
		meta.DuplicatedTransactions = duplicates
	}

	failed := domain.TaskStatusError
	if _, err := c.tasks.UpdateTask(ctx, c.taskID, store.TaskUpdate{Status: &failed, Meta: &meta}); err != nil {
		c.log.Error().Err(err).Msg("Could not mark task as failed")
	}
	c.log.Error().Err(cause).Msg("Import task failed")
	return cause
}

// Complete marks the task as completed with the final created count,
// recording any duplicates in meta without failing the task.
func (c *TaskController) Complete(ctx context.Context, createdCount int, duplicates []string) error {
	completed := domain.TaskStatusCompleted
	upd := store.TaskUpdate{
		Status:         &completed,
		ProcessedCount: &createdCount,
	}
	if len(duplicates) > 0 {
		upd.Meta = &domain.TaskMeta{DuplicatedTransactions: duplicates}
	}

	if _, err := c.tasks.UpdateTask(ctx, c.taskID, upd); err != nil {
		return err
	}
	return nil
}
