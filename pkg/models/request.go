// Package models defines the core domain models for query approval and execution.
package models

import (
	"errors"
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"  // Awaiting an approve/reject decision
	RequestStatusApproved RequestStatus = "APPROVED" // Approved, execution in flight
	RequestStatusRejected RequestStatus = "REJECTED" // Terminal
	RequestStatusExecuted RequestStatus = "EXECUTED" // Terminal, execution succeeded
	RequestStatusFailed   RequestStatus = "FAILED"   // Terminal, execution failed
)

// IsTerminal reports whether no further transition can leave the status.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusExecuted || s == RequestStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected,
		RequestStatusExecuted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

var transitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved: {RequestStatusExecuted, RequestStatusFailed},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// DatabaseKind is the family of the target database.
type DatabaseKind string

const (
	DatabaseKindRelational DatabaseKind = "relational"
	DatabaseKindDocument   DatabaseKind = "document"
)

// Valid reports whether k is a supported database kind.
func (k DatabaseKind) Valid() bool {
	return k == DatabaseKindRelational || k == DatabaseKindDocument
}

// SubmissionKind tells whether a request carries an inline statement or an uploaded script.
type SubmissionKind string

const (
	SubmissionKindQuery  SubmissionKind = "query"
	SubmissionKindScript SubmissionKind = "script"
)

// Valid reports whether k is a known submission kind.
func (k SubmissionKind) Valid() bool {
	return k == SubmissionKindQuery || k == SubmissionKindScript
}

var (
	ErrQueryContentRequired = errors.New("query content is required for query submissions")
	ErrScriptPathRequired   = errors.New("script path is required for script submissions")
	ErrMixedContent         = errors.New("exactly one of query content or script path must be set")
	ErrUnknownSubmission    = errors.New("unknown submission kind")
)

// Request is a unit of work awaiting or having undergone approval.
type Request struct {
	ID              string         `json:"id"`
	RequesterID     string         `json:"requester_id"`
	RequesterName   string         `json:"requester_name,omitempty"`
	DatabaseKind    DatabaseKind   `json:"database_kind"`
	InstanceName    string         `json:"instance_name"`
	DatabaseName    string         `json:"database_name"`
	SubmissionKind  SubmissionKind `json:"submission_kind"`
	QueryContent    string         `json:"query_content,omitempty"`
	ScriptPath      string         `json:"script_path,omitempty"`
	Justification   string         `json:"justification"`
	Team            string         `json:"team"`
	Status          RequestStatus  `json:"status"`
	ApproverID      string         `json:"approver_id,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Content returns the statement text or script path, whichever the submission kind carries.
func (r *Request) Content() string {
	if r.SubmissionKind == SubmissionKindScript {
		return r.ScriptPath
	}

	return r.QueryContent
}

// Validate checks that the content fields match the submission kind.
func (r *Request) Validate() error {
	switch r.SubmissionKind {
	case SubmissionKindQuery:
		if strings.TrimSpace(r.QueryContent) == "" {
			return ErrQueryContentRequired
		}

		if r.ScriptPath != "" {
			return ErrMixedContent
		}
	case SubmissionKindScript:
		if r.ScriptPath == "" {
			return ErrScriptPathRequired
		}

		if r.QueryContent != "" {
			return ErrMixedContent
		}
	default:
		return ErrUnknownSubmission
	}

	return nil
}
