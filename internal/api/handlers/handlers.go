package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/api/middleware"
	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// ImportsHandler handles the statement import endpoints.
type ImportsHandler struct {
	tasks     store.TaskRepository
	publisher jobs.Publisher
	bucket    string
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(tasks store.TaskRepository, publisher jobs.Publisher, bucket string, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		tasks:     tasks,
		publisher: publisher,
		bucket:    bucket,
		log:       log,
	}
}

type taskResponse struct {
	ID                   string           `json:"id"`
	Status               string           `json:"status"`
	TotalCount           int              `json:"totalCount"`
	ProcessedCount       int              `json:"processedCount"`
	OrganizationID       string           `json:"organizationId"`
	PropertyID           string           `json:"propertyId,omitempty"`
	AccountID            string           `json:"accountId,omitempty"`
	IntegrationContextID string           `json:"integrationContextId,omitempty"`
	FileURL              string           `json:"fileUrl"`
	Meta                 *domain.TaskMeta `json:"meta,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            *time.Time       `json:"updatedAt,omitempty"`
}

func toTaskResponse(task *domain.Task) taskResponse {
	resp := taskResponse{
		ID:                   task.ID,
		Status:               string(task.Status),
		TotalCount:           task.TotalCount,
		ProcessedCount:       task.ProcessedCount,
		OrganizationID:       task.OrganizationID,
		PropertyID:           task.PropertyID,
		AccountID:            task.AccountID,
		IntegrationContextID: task.IntegrationContextID,
		FileURL:              task.FileURL,
		CreatedAt:            task.CreatedAt,
	}
	if !task.Meta.IsZero() {
		meta := task.Meta
		resp.Meta = &meta
	}
	if !task.UpdatedAt.IsZero() {
		updated := task.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// CreateImport handles POST /api/imports.
// It creates an import task for an uploaded statement file and
// enqueues the processing job.
func (h *ImportsHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrganizationID string `json:"organizationId"`
		PropertyID     string `json:"propertyId"`
		FileURL        string `json:"fileUrl"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrganizationID == "" || req.FileURL == "" {
		middleware.WriteError(w, http.StatusBadRequest, "organizationId and fileUrl are required")
		return
	}

	ctx := r.Context()

	task, err := h.tasks.CreateTask(ctx, &domain.Task{
		Status:         domain.TaskStatusProcessing,
		OrganizationID: req.OrganizationID,
		PropertyID:     req.PropertyID,
		FileURL:        req.FileURL,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create import task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create import task")
		return
	}

	job := &jobs.ImportStatementJob{TaskID: task.ID}
	if err := h.publisher.PublishImportStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("task_id", task.ID).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"job_id":  job.JobID,
		"status":  string(task.Status),
	})
}

// GetImport handles GET /api/imports/{id}.
func (h *ImportsHandler) GetImport(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to get import task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get import task")
		return
	}
	if task == nil {
		middleware.WriteError(w, http.StatusNotFound, "Import task not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toTaskResponse(task))
}

// CancelImport handles POST /api/imports/{id}/cancel.
// The processing loop polls the task status before every row, so the
// cancellation takes effect within one row of work.
func (h *ImportsHandler) CancelImport(w http.ResponseWriter, r *http.Request, taskID string) {
	ctx := r.Context()

	task, err := h.tasks.GetTask(ctx, taskID)
	if err != nil {
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to get import task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to cancel import task")
		return
	}
	if task == nil {
		middleware.WriteError(w, http.StatusNotFound, "Import task not found")
		return
	}
	if task.Status != domain.TaskStatusQueued && task.Status != domain.TaskStatusProcessing {
		middleware.WriteError(w, http.StatusConflict, fmt.Sprintf("Cannot cancel task in status %q", task.Status))
		return
	}

	cancelled := domain.TaskStatusCancelled
	task, err = h.tasks.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &cancelled})
	if err != nil {
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to cancel import task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to cancel import task")
		return
	}

	h.log.Info().Str("task_id", taskID).Msg("Import task cancelled")
	middleware.WriteJSON(w, http.StatusOK, toTaskResponse(task))
}

// UploadStatement handles POST /api/imports/upload.
// It streams the request body into cloud storage and returns the
// gs:// URI to pass to CreateImport.
func (h *ImportsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No storage bucket configured")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "statement.txt"
	}

	objectName := fmt.Sprintf("statements/%s/%s", time.Now().Format("2006/01/02"), uuid.NewString()+"-"+filename)
	gcsURI := fmt.Sprintf("gs://%s/%s", h.bucket, objectName)

	client, err := storage.NewClient(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create storage client")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	defer client.Close()

	wc := client.Bucket(h.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = "text/plain"

	written, err := io.Copy(wc, r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to write to GCS")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	if err := wc.Close(); err != nil {
		h.log.Error().Err(err).Msg("Failed to close GCS writer")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	h.log.Info().
		Str("gcs_uri", gcsURI).
		Int64("bytes", written).
		Msg("Statement file uploaded")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"file_url":    gcsURI,
		"object_name": objectName,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		TaskID: query.Get("task_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
