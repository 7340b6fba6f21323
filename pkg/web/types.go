package web

import (
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/screen"
)

// SubmitQueryRequest is the body of an inline statement submission.
type SubmitQueryRequest struct {
	DatabaseKind  models.DatabaseKind `json:"database_kind"  validate:"required,oneof=relational document"`
	InstanceName  string              `json:"instance_name"  validate:"required"`
	DatabaseName  string              `json:"database_name"  validate:"required"`
	QueryContent  string              `json:"query_content"  validate:"required"`
	Justification string              `json:"justification"  validate:"required,min=3"`
	Team          string              `json:"team,omitempty"`
}

// SubmitScriptForm holds the form fields sent alongside an uploaded script.
type SubmitScriptForm struct {
	DatabaseKind  models.DatabaseKind `validate:"required,oneof=relational document"`
	InstanceName  string              `validate:"required"`
	DatabaseName  string              `validate:"required"`
	Justification string              `validate:"required,min=3"`
	Team          string
}

// RejectRequest is the optional body of a rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// UpdateStatusRequest selects approve or reject in one call.
type UpdateStatusRequest struct {
	Status models.RequestStatus `json:"status" validate:"required"`
	Reason string               `json:"reason" validate:"max=2000"`
}

// ScreenRequest asks for a destructive-operation preview.
type ScreenRequest struct {
	Content        string                `json:"content"         validate:"required"`
	DatabaseKind   models.DatabaseKind   `json:"database_kind"   validate:"required,oneof=relational document"`
	SubmissionKind models.SubmissionKind `json:"submission_kind" validate:"omitempty,oneof=query script"`
}

// RequestResponse is a request plus its screen result.
type RequestResponse struct {
	*models.Request

	Screen screen.Result `json:"screen"`
}

// InstanceResponse exposes a registered instance without connection details.
type InstanceResponse struct {
	Name        string              `json:"name"`
	Kind        models.DatabaseKind `json:"kind"`
	Description string              `json:"description,omitempty"`
}
