package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the outcome of one dispatch attempt.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailure ExecutionStatus = "FAILURE"
)

// Execution is the persisted outcome of one dispatch attempt for a request.
// It is created once and never updated.
type Execution struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"request_id"`
	Status         ExecutionStatus `json:"status"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	IsTruncated    bool            `json:"is_truncated"`
	TotalRows      *int            `json:"total_rows,omitempty"`
	ResultFilePath *string         `json:"result_file_path,omitempty"`
	ExecutedAt     time.Time       `json:"executed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasArtifact reports whether an offloaded artifact was recorded for the execution.
func (e *Execution) HasArtifact() bool {
	return e.IsTruncated && e.ResultFilePath != nil && *e.ResultFilePath != ""
}
