package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	sdkerrors "github.com/wehubfusion/Themis/pkg/errors"
	"github.com/wehubfusion/Themis/pkg/node"
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job asks a worker to run one validation node over a batch of items.
// Jobs are serialized to JSON for transmission over JetStream.
type Job struct {
	// ID uniquely identifies the job. Generated when absent.
	ID string `json:"id"`

	// CorrelationID tracks related messages across the system
	CorrelationID string `json:"correlationId,omitempty"`

	// WorkflowID and RunID identify the workflow execution the job belongs to
	WorkflowID string `json:"workflowId,omitempty"`
	RunID      string `json:"runId,omitempty"`

	// NodeType is the plugin type of the node to run
	NodeType string `json:"nodeType"`

	// NodeName is the name of the node instance, used in halting errors
	NodeName string `json:"nodeName,omitempty"`

	// ContinueOnFail tags failing items instead of halting the job
	ContinueOnFail bool `json:"continueOnFail"`

	// Parameters are the node parameters shared by every item
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// ItemParameters optionally overrides Parameters per item index
	ItemParameters []map[string]interface{} `json:"itemParameters,omitempty"`

	// Items is the input batch
	Items []node.Item `json:"items"`

	// CreatedAt is the timestamp when the job was created
	CreatedAt string `json:"createdAt"`
}

// NewJob creates a job for the node type with a generated ID.
func NewJob(nodeType string, items []node.Item) *Job {
	id := uuid.NewString()
	return &Job{
		ID:            id,
		CorrelationID: id,
		NodeType:      nodeType,
		Items:         items,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

// WithNodeName sets the node instance name
func (j *Job) WithNodeName(name string) *Job {
	j.NodeName = name
	return j
}

// WithWorkflow sets the workflow execution the job belongs to
func (j *Job) WithWorkflow(workflowID, runID string) *Job {
	j.WorkflowID = workflowID
	j.RunID = runID
	return j
}

// WithCorrelationID sets the correlation ID
func (j *Job) WithCorrelationID(correlationID string) *Job {
	j.CorrelationID = correlationID
	return j
}

// WithParameters sets the shared node parameters
func (j *Job) WithParameters(params map[string]interface{}) *Job {
	j.Parameters = params
	return j
}

// WithContinueOnFail sets the failure mode
func (j *Job) WithContinueOnFail(continueOnFail bool) *Job {
	j.ContinueOnFail = continueOnFail
	return j
}

// ToBytes serializes the job to JSON bytes
func (j *Job) ToBytes() ([]byte, error) {
	return json.Marshal(j)
}

// JobFromBytes decodes a job. Missing IDs are generated; a job without a node
// type is rejected with ErrInvalidJob.
func JobFromBytes(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", sdkerrors.ErrInvalidJob, err)
	}
	if job.NodeType == "" {
		return nil, fmt.Errorf("%w: missing nodeType", sdkerrors.ErrInvalidJob)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CorrelationID == "" {
		job.CorrelationID = job.ID
	}
	if job.CreatedAt == "" {
		job.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return &job, nil
}

// ResultError describes a job that halted.
type ResultError struct {
	// Message is the underlying failure message
	Message string `json:"message"`
	// ItemIndex is the index of the failing item, or -1 if the failure is not tied to an item
	ItemIndex int `json:"itemIndex"`
	// Code classifies the failure
	Code string `json:"code"`
}

// Result error codes
const (
	ErrorCodeHalted      = "NODE_HALTED"
	ErrorCodeUnknownNode = "UNKNOWN_NODE"
	ErrorCodeInternal    = "INTERNAL_ERROR"
)

// Result reports the outcome of a job.
type Result struct {
	JobID         string       `json:"jobId"`
	CorrelationID string       `json:"correlationId,omitempty"`
	WorkflowID    string       `json:"workflowId,omitempty"`
	RunID         string       `json:"runId,omitempty"`
	NodeType      string       `json:"nodeType"`
	Status        string       `json:"status"`
	Items         []node.Item  `json:"items,omitempty"`
	Error         *ResultError `json:"error,omitempty"`
	DurationMs    int64        `json:"durationMs"`
	CompletedAt   string       `json:"completedAt"`
}

// NewResult creates a successful, empty result for the job.
func NewResult(job *Job) *Result {
	return &Result{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		WorkflowID:    job.WorkflowID,
		RunID:         job.RunID,
		NodeType:      job.NodeType,
		Status:        StatusSuccess,
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// WithItems sets the output batch
func (r *Result) WithItems(items []node.Item) *Result {
	r.Items = items
	return r
}

// WithError marks the result as failed
func (r *Result) WithError(code, message string, itemIndex int) *Result {
	r.Status = StatusError
	r.Items = nil
	r.Error = &ResultError{Code: code, Message: message, ItemIndex: itemIndex}
	return r
}

// WithDuration records how long the job took
func (r *Result) WithDuration(d time.Duration) *Result {
	r.DurationMs = d.Milliseconds()
	return r
}

// Failed reports whether the job halted
func (r *Result) Failed() bool {
	return r.Status == StatusError
}

// ToBytes serializes the result to JSON bytes
func (r *Result) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// ResultFromBytes decodes a result
func ResultFromBytes(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
