package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/querygate/pkg/persistence"
	"github.com/dukex/querygate/pkg/retention"
	"github.com/google/uuid"
)

// ObjectProber checks that a stored artifact still exists.
type ObjectProber interface {
	Exists(ctx context.Context, objectURL string) (bool, error)
}

// Artifact serves offloaded result files.
type Artifact struct {
	executions persistence.ExecutionRepository
	store      ObjectProber
	policy     retention.Policy
	logger     *slog.Logger
	now        func() time.Time
}

func NewArtifact(logger *slog.Logger, executions persistence.ExecutionRepository, store ObjectProber, policy retention.Policy) *Artifact {
	return &Artifact{
		executions: executions,
		store:      store,
		policy:     policy,
		logger:     logger.With("module", "artifact_service"),
		now:        time.Now,
	}
}

// Download returns the URL to redirect to for the request's offloaded result.
// Unlike GetExecution it probes the object store.
func (a *Artifact) Download(ctx context.Context, requestID string) (string, error) {
	const op = "Download"

	if _, err := uuid.Parse(requestID); err != nil {
		return "", notFound(op, "execution not found for request "+requestID)
	}

	record, err := a.executions.GetByRequestID(ctx, requestID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return "", notFound(op, "execution not found for request "+requestID)
		}

		return "", fmt.Errorf("failed to get execution: %w", err)
	}

	if !record.IsTruncated {
		return "", invalidArgument(op, "execution result was not truncated, nothing to download")
	}

	if !record.HasArtifact() {
		return "", newError(op, CodeArtifactNotRecorded, "result file was never produced", ErrArtifactUnavailable)
	}

	if a.policy.Evaluate(record, a.now()).Expired {
		return "", newError(op, CodeArtifactExpired, "result file has expired", ErrArtifactExpired)
	}

	url := *record.ResultFilePath

	exists, err := a.store.Exists(ctx, url)
	if err != nil {
		a.logger.WarnContext(ctx, "Artifact probe failed", "request_id", requestID, "url", url, "error", err)

		return "", newError(op, CodeArtifactGone, "result file is no longer available", errors.Join(ErrArtifactUnavailable, err))
	}

	if !exists {
		return "", newError(op, CodeArtifactGone, "result file is no longer available", ErrArtifactUnavailable)
	}

	return url, nil
}
