// Package jobs defines the background audit job model and the queue
// abstractions the API and worker share.
package jobs

import (
	"context"
	"time"
)

// JobType identifies what kind of work a job carries.
type JobType string

const (
	// JobTypeRunAudit is a full statement audit: fetch, parse, analyze, persist.
	JobTypeRunAudit JobType = "run_audit"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// AuditJob is a queued request to audit one uploaded statement.
type AuditJob struct {
	// JobID is the queue-level identifier, distinct from the audit record.
	JobID string `json:"job_id"`

	// AuditID is the audit record this job executes.
	AuditID string `json:"audit_id"`

	// UserID owns the statement and the resulting report.
	UserID string `json:"user_id"`

	// URI locates the uploaded statement, e.g. "gs://bucket/statements/x.pdf".
	URI string `json:"uri"`

	// Filename is the original upload name, kept for notifications.
	Filename string `json:"filename"`

	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is set on success and on terminal failure.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the failure message of the last attempt.
	Error string `json:"error,omitempty"`

	// RetryCount counts attempts already made beyond the first.
	RetryCount int `json:"retry_count"`

	// MaxRetries of zero means a failure is terminal. Audit failures are
	// almost never transient (scanned image, empty statement), so the API
	// publishes audits with zero retries.
	MaxRetries int `json:"max_retries"`
}

// Job is the queue's view of any job type.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *AuditJob) GetID() string        { return j.JobID }
func (j *AuditJob) GetType() JobType     { return JobTypeRunAudit }
func (j *AuditJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs. Implementations may be in-memory or backed by
// an external broker.
type Publisher interface {
	// PublishAudit enqueues an audit job for asynchronous processing.
	PublishAudit(ctx context.Context, job *AuditJob) error

	// Close releases publisher resources.
	Close() error
}

// Consumer drains jobs from a queue.
type Consumer interface {
	// Start begins consuming; handler is invoked once per received job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A non-nil error triggers a retry when the
// job has retries left, otherwise marks it failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so callers can poll progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *AuditJob) error
	GetJob(ctx context.Context, jobID string) (*AuditJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*AuditJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	AuditID string
	UserID  string
	Status  JobStatus
	Limit   int
	Offset  int
}
