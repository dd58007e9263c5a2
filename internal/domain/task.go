package domain

import "time"

// TaskStatus is the lifecycle state of an ImportTask.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task was created but no pipeline
	// run picked it up yet.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusProcessing indicates the import pipeline owns the task.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the run finished and all new transactions were persisted.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusError indicates the run failed with a user-facing message in Meta.ErrorMessage.
	TaskStatusError TaskStatus = "error"
	// TaskStatusCancelled is set by an external actor; the pipeline only ever observes it.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskMeta holds the free-form outcome data of an import run.
// It is persisted as a JSON column next to the task row.
type TaskMeta struct {
	ErrorMessage           string   `json:"errorMessage,omitempty"`
	DuplicatedTransactions []string `json:"duplicatedTransactions,omitempty"`
}

// IsZero reports whether the meta carries no data.
func (m TaskMeta) IsZero() bool {
	return m.ErrorMessage == "" && len(m.DuplicatedTransactions) == 0
}

// Task is the mutable record tracking one reconciliation run.
// The pipeline exclusively owns its status transitions while the status
// is "processing"; any other status observed mid-run means an external
// actor took the task away and the run must stop.
type Task struct {
	ID             string
	Status         TaskStatus
	TotalCount     int
	ProcessedCount int

	OrganizationID string
	// PropertyID optionally pins the statement's account to a property.
	PropertyID string
	// AccountID and IntegrationContextID are set once the account is
	// resolved and never unset afterwards.
	AccountID            string
	IntegrationContextID string

	// FileURL references the uploaded statement file. Either a
	// "gs://bucket/object" URI or a public "https://" URL.
	FileURL string

	Meta TaskMeta

	CreatedAt time.Time
	UpdatedAt time.Time
}
