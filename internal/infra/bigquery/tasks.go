package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

type TaskRow struct {
	TaskID string `bigquery:"task_id"` // REQUIRED
	Status string `bigquery:"status"`  // REQUIRED

	TotalCount     bigquery.NullInt64 `bigquery:"total_count"`     // NULLABLE
	ProcessedCount bigquery.NullInt64 `bigquery:"processed_count"` // NULLABLE

	OrganizationID       string              `bigquery:"organization_id"`        // REQUIRED
	PropertyID           bigquery.NullString `bigquery:"property_id"`            // NULLABLE
	AccountID            bigquery.NullString `bigquery:"account_id"`             // NULLABLE
	IntegrationContextID bigquery.NullString `bigquery:"integration_context_id"` // NULLABLE

	FileURL string `bigquery:"file_url"` // REQUIRED

	Meta bigquery.NullJSON `bigquery:"meta"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

func (r *TaskRow) toDomain() *domain.Task {
	task := &domain.Task{
		ID:                   r.TaskID,
		Status:               domain.TaskStatus(r.Status),
		TotalCount:           int(r.TotalCount.Int64),
		ProcessedCount:       int(r.ProcessedCount.Int64),
		OrganizationID:       r.OrganizationID,
		PropertyID:           r.PropertyID.StringVal,
		AccountID:            r.AccountID.StringVal,
		IntegrationContextID: r.IntegrationContextID.StringVal,
		FileURL:              r.FileURL,
		Meta:                 taskMetaFromJSON(r.Meta),
		CreatedAt:            r.CreatedTS,
	}
	if r.UpdatedTS.Valid {
		task.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return task
}

func taskMetaJSON(meta domain.TaskMeta) bigquery.NullJSON {
	if meta.IsZero() {
		return bigquery.NullJSON{}
	}
	v := map[string]any{}
	if meta.ErrorMessage != "" {
		v["errorMessage"] = meta.ErrorMessage
	}
	if len(meta.DuplicatedTransactions) > 0 {
		v["duplicatedTransactions"] = meta.DuplicatedTransactions
	}
	return bigquery.NullJSON{JSONVal: v, Valid: true}
}

func taskMetaFromJSON(v bigquery.NullJSON) domain.TaskMeta {
	var meta domain.TaskMeta
	if !v.Valid {
		return meta
	}
	m, ok := v.JSONVal.(map[string]any)
	if !ok {
		return meta
	}
	if s, ok := m["errorMessage"].(string); ok {
		meta.ErrorMessage = s
	}
	if list, ok := m["duplicatedTransactions"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				meta.DuplicatedTransactions = append(meta.DuplicatedTransactions, s)
			}
		}
	}
	return meta
}

const taskColumns = `
	task_id,
	status,
	total_count,
	processed_count,
	organization_id,
	property_id,
	account_id,
	integration_context_id,
	file_url,
	meta,
	created_ts,
	updated_ts`

// GetTask retrieves a task by id. Returns (nil, nil) when no task with
// the given id exists.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE task_id = @task_id
		LIMIT 1
	`, taskColumns, s.table(tasksTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "task_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTask: reading query: %w", err)
	}

	var row TaskRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTask: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// CreateTask inserts a new task row, generating the id when empty.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s (
			task_id,
			status,
			total_count,
			processed_count,
			organization_id,
			property_id,
			account_id,
			integration_context_id,
			file_url,
			meta,
			created_ts
		)
		VALUES (
			@task_id,
			@status,
			@total_count,
			@processed_count,
			@organization_id,
			@property_id,
			@account_id,
			@integration_context_id,
			@file_url,
			@meta,
			@created_ts
		)
	`, s.table(tasksTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "task_id", Value: task.ID},
		{Name: "status", Value: string(task.Status)},
		{Name: "total_count", Value: int64(task.TotalCount)},
		{Name: "processed_count", Value: int64(task.ProcessedCount)},
		{Name: "organization_id", Value: task.OrganizationID},
		{Name: "property_id", Value: nullString(task.PropertyID)},
		{Name: "account_id", Value: nullString(task.AccountID)},
		{Name: "integration_context_id", Value: nullString(task.IntegrationContextID)},
		{Name: "file_url", Value: task.FileURL},
		{Name: "meta", Value: taskMetaJSON(task.Meta)},
		{Name: "created_ts", Value: task.CreatedAt},
	}

	if err := s.runDML(ctx, q, "CreateTask"); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a partial update and returns the fresh row.
func (s *Store) UpdateTask(ctx context.Context, id string, upd store.TaskUpdate) (*domain.Task, error) {
	assignments := []string{"updated_ts = @updated_ts"}
	params := []bigquery.QueryParameter{
		{Name: "updated_ts", Value: time.Now()},
		{Name: "task_id", Value: id},
	}

	if upd.Status != nil {
		assignments = append(assignments, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(*upd.Status)})
	}
	if upd.TotalCount != nil {
		assignments = append(assignments, "total_count = @total_count")
		params = append(params, bigquery.QueryParameter{Name: "total_count", Value: int64(*upd.TotalCount)})
	}
	if upd.ProcessedCount != nil {
		assignments = append(assignments, "processed_count = @processed_count")
		params = append(params, bigquery.QueryParameter{Name: "processed_count", Value: int64(*upd.ProcessedCount)})
	}
	if upd.AccountID != nil {
		assignments = append(assignments, "account_id = @account_id")
		params = append(params, bigquery.QueryParameter{Name: "account_id", Value: nullString(*upd.AccountID)})
	}
	if upd.IntegrationContextID != nil {
		assignments = append(assignments, "integration_context_id = @integration_context_id")
		params = append(params, bigquery.QueryParameter{Name: "integration_context_id", Value: nullString(*upd.IntegrationContextID)})
	}
	if upd.Meta != nil {
		assignments = append(assignments, "meta = @meta")
		params = append(params, bigquery.QueryParameter{Name: "meta", Value: taskMetaJSON(*upd.Meta)})
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE task_id = @task_id
	`, s.table(tasksTable), strings.Join(assignments, ",\n		    ")))
	q.Parameters = params

	if err := s.runDML(ctx, q, "UpdateTask"); err != nil {
		return nil, err
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("UpdateTask: task %q not found after update", id)
	}
	return task, nil
}
