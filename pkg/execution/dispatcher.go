// Package execution routes approved requests to the relational, document or
// script executor and normalizes the outcome.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ExecutorRelational = "relational"
	ExecutorDocument   = "document"
	ExecutorScript     = "script"
	ExecutorNone       = "none"
)

// Resolver looks up connection descriptors.
type Resolver interface {
	Resolve(name string, kind models.DatabaseKind) (models.ConnectionDescriptor, error)
}

type RelationalExecutor interface {
	Execute(ctx context.Context, desc models.ConnectionDescriptor, database, statement string) (*models.QueryResult, error)
}

type DocumentExecutor interface {
	Execute(ctx context.Context, desc models.ConnectionDescriptor, database, invocation string) (any, error)
}

type ScriptExecutor interface {
	Execute(ctx context.Context, desc models.ConnectionDescriptor, database, ref string) (*models.ScriptResult, error)
}

// Observer receives one call per dispatch.
type Observer interface {
	ObserveExecution(executor string, success bool, duration time.Duration)
}

// Outcome is the normalized result of one dispatch.
type Outcome struct {
	Success        bool
	Payload        json.RawMessage
	Error          string
	IsTruncated    bool
	TotalRows      *int
	ResultFilePath *string
	Executor       string
	ExecutedAt     time.Time
	Duration       time.Duration
}

// Dispatcher selects an executor for a request and turns every result,
// error or panic into an Outcome.
type Dispatcher struct {
	resolver   Resolver
	relational RelationalExecutor
	document   DocumentExecutor
	script     ScriptExecutor
	tracer     trace.Tracer
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithTracer(tracer trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

func WithObserver(observer Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

func NewDispatcher(
	logger *slog.Logger,
	resolver Resolver,
	relational RelationalExecutor,
	document DocumentExecutor,
	script ScriptExecutor,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		resolver:   resolver,
		relational: relational,
		document:   document,
		script:     script,
		tracer:     otelhelper.NoopTracer(),
		logger:     logger.With("module", "dispatcher"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch runs the request. It never returns an error; failures are
// reported through Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.Request) (outcome Outcome) {
	start := d.now()
	outcome.Executor = executorFor(req)

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "execution.dispatch",
		attribute.String(otelhelper.RequestIDKey, req.ID),
		attribute.String(otelhelper.InstanceNameKey, req.InstanceName),
		attribute.String(otelhelper.DatabaseKindKey, string(req.DatabaseKind)),
		attribute.String(otelhelper.SubmissionKindKey, string(req.SubmissionKind)),
		attribute.String(otelhelper.ExecutorKey, outcome.Executor),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Executor: outcome.Executor, Error: fmt.Sprintf("executor panicked: %v", r)}
		}

		outcome.ExecutedAt = d.now()
		outcome.Duration = outcome.ExecutedAt.Sub(start)

		if d.observer != nil {
			d.observer.ObserveExecution(outcome.Executor, outcome.Success, outcome.Duration)
		}

		if outcome.Success {
			d.logger.InfoContext(ctx, "Execution succeeded", "request_id", req.ID, "executor", outcome.Executor, "duration", outcome.Duration)
		} else {
			otelhelper.SetError(span, errors.New(outcome.Error), attribute.String(otelhelper.RequestIDKey, req.ID))
			d.logger.WarnContext(ctx, "Execution failed", "request_id", req.ID, "executor", outcome.Executor, "error", outcome.Error)
		}
	}()

	desc, err := d.resolver.Resolve(req.InstanceName, req.DatabaseKind)
	if err != nil {
		return failure(outcome.Executor, err)
	}

	switch outcome.Executor {
	case ExecutorScript:
		result, err := d.script.Execute(ctx, desc, req.DatabaseName, req.ScriptPath)
		if err != nil {
			return failure(outcome.Executor, err)
		}

		return success(outcome.Executor, result, nil)
	case ExecutorRelational:
		result, err := d.relational.Execute(ctx, desc, req.DatabaseName, req.QueryContent)
		if err != nil {
			return failure(outcome.Executor, err)
		}

		return success(outcome.Executor, result, result)
	case ExecutorDocument:
		result, err := d.document.Execute(ctx, desc, req.DatabaseName, req.QueryContent)
		if err != nil {
			return failure(outcome.Executor, err)
		}

		qr, _ := result.(*models.QueryResult)

		return success(outcome.Executor, result, qr)
	default:
		return failure(outcome.Executor, errors.New("unsupported database type"))
	}
}

func executorFor(req *models.Request) string {
	switch {
	case req.SubmissionKind == models.SubmissionKindScript:
		return ExecutorScript
	case req.DatabaseKind == models.DatabaseKindRelational:
		return ExecutorRelational
	case req.DatabaseKind == models.DatabaseKindDocument:
		return ExecutorDocument
	default:
		return ExecutorNone
	}
}

func failure(executor string, err error) Outcome {
	return Outcome{Executor: executor, Error: err.Error()}
}

func success(executor string, payload any, qr *models.QueryResult) Outcome {
	data, err := json.Marshal(payload)
	if err != nil {
		return failure(executor, fmt.Errorf("failed to encode result: %w", err))
	}

	outcome := Outcome{Success: true, Payload: data, Executor: executor}

	if qr != nil {
		total := qr.TotalRows
		outcome.TotalRows = &total
		outcome.IsTruncated = qr.IsTruncated

		if qr.IsTruncated {
			outcome.ResultFilePath = qr.ResultFilePath
		}
	}

	return outcome
}
