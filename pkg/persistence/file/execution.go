package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository stores one execution file per request, keyed by request ID.
type ExecutionRepository struct {
	p *Persistence
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var existing models.Execution

	found, err := r.p.read(executionsDir, execution.RequestID, &existing)
	if err != nil {
		return err
	}

	if found {
		return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.RequestID)
	}

	return r.p.write(executionsDir, execution.RequestID, execution)
}

func (r *ExecutionRepository) GetByRequestID(_ context.Context, requestID string) (*models.Execution, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var execution models.Execution

	found, err := r.p.read(executionsDir, requestID, &execution)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionNotFound, requestID)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListExpiredArtifacts(_ context.Context, from, to time.Time) ([]*models.Execution, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	ids, err := r.p.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	result := []*models.Execution{}

	for _, id := range ids {
		var execution models.Execution

		if _, err := r.p.read(executionsDir, id, &execution); err != nil {
			return nil, err
		}

		if !execution.HasArtifact() {
			continue
		}

		if !execution.CreatedAt.Before(from) && execution.CreatedAt.Before(to) {
			result = append(result, &execution)
		}
	}

	return result, nil
}
