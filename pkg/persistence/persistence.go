package persistence

import (
	"context"
	"time"

	"github.com/dukex/querygate/pkg/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// RequestFilter narrows List. Empty fields do not filter.
type RequestFilter struct {
	RequesterID string
	Team        string
	Status      *models.RequestStatus
	Limit       int
	Offset      int
}

// Normalize clamps the limit to [1, MaxListLimit], defaulting to DefaultListLimit.
func (f RequestFilter) Normalize() RequestFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}

	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}

	if f.Offset < 0 {
		f.Offset = 0
	}

	return f
}

// Matches reports whether r passes the filter's field conditions.
func (f RequestFilter) Matches(r *models.Request) bool {
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}

	if f.Team != "" && r.Team != f.Team {
		return false
	}

	if f.Status != nil && r.Status != *f.Status {
		return false
	}

	return true
}

// RequestRepository stores requests.
type RequestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	// List returns matching requests, newest first.
	List(ctx context.Context, filter RequestFilter) ([]*models.Request, error)
	// Transition applies mutate to the request only if its status is still
	// from, and returns the stored result. A request whose status moved on
	// yields ErrStatusConflict.
	Transition(ctx context.Context, id string, from models.RequestStatus, mutate func(*models.Request)) (*models.Request, error)
}

// ExecutionRepository stores execution records. Records are immutable.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByRequestID(ctx context.Context, requestID string) (*models.Execution, error)
	// ListExpiredArtifacts returns truncated executions with an artifact
	// whose created_at falls within [from, to).
	ListExpiredArtifacts(ctx context.Context, from, to time.Time) ([]*models.Execution, error)
}

// Persistence is the storage backend of the request engine.
type Persistence interface {
	RequestRepository() RequestRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
