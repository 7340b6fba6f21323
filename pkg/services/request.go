package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/querygate/pkg/events"
	"github.com/dukex/querygate/pkg/execution"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
	"github.com/dukex/querygate/pkg/registry"
	"github.com/dukex/querygate/pkg/retention"
	"github.com/dukex/querygate/pkg/screen"
	"github.com/google/uuid"
)

// Dispatcher runs an approved request. It reports every failure through the outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.Request) execution.Outcome
}

// ScriptSource looks up uploaded script artifacts.
type ScriptSource interface {
	Exists(ref string) bool
	Read(ref string) ([]byte, error)
}

// Notifier hands lifecycle events off for asynchronous delivery.
type Notifier interface {
	Send(ctx context.Context, event events.RequestEvent)
}

// Observer records lifecycle metrics.
type Observer interface {
	ObserveTransition(status string)
	ObserveDestructive(databaseKind string)
}

// Request drives the request state machine.
type Request struct {
	persistence persistence.Persistence
	resolver    execution.Resolver
	dispatcher  Dispatcher
	scripts     ScriptSource
	notifier    Notifier
	observer    Observer
	policy      retention.Policy
	logger      *slog.Logger
	now         func() time.Time
}

type RequestOption func(*Request)

func WithNotifier(notifier Notifier) RequestOption {
	return func(r *Request) {
		r.notifier = notifier
	}
}

func WithObserver(observer Observer) RequestOption {
	return func(r *Request) {
		r.observer = observer
	}
}

func WithRetentionPolicy(policy retention.Policy) RequestOption {
	return func(r *Request) {
		r.policy = policy
	}
}

func WithClock(now func() time.Time) RequestOption {
	return func(r *Request) {
		r.now = now
	}
}

// NewRequest creates the request lifecycle service.
func NewRequest(
	logger *slog.Logger,
	persistence persistence.Persistence,
	resolver execution.Resolver,
	dispatcher Dispatcher,
	scripts ScriptSource,
	opts ...RequestOption,
) *Request {
	r := &Request{
		persistence: persistence,
		resolver:    resolver,
		dispatcher:  dispatcher,
		scripts:     scripts,
		policy:      retention.NewPolicy(retention.DefaultWindow),
		logger:      logger.With("module", "request_service"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// HealthCheck checks the health of the persistence layer.
func (r *Request) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SubmitRequest carries a new submission.
type SubmitRequest struct {
	DatabaseKind   models.DatabaseKind
	InstanceName   string
	DatabaseName   string
	SubmissionKind models.SubmissionKind
	QueryContent   string
	ScriptPath     string
	Justification  string
	// Team defaults to the submitter's team.
	Team string
}

// Submit stores a new PENDING request and returns it with the advisory screen result.
func (r *Request) Submit(ctx context.Context, actor models.Actor, in SubmitRequest) (*models.Request, screen.Result, error) {
	const op = "Submit"

	if !in.DatabaseKind.Valid() {
		return nil, screen.Result{}, invalidArgument(op, fmt.Sprintf("unsupported database kind %q", in.DatabaseKind))
	}

	if strings.TrimSpace(in.InstanceName) == "" {
		return nil, screen.Result{}, invalidArgument(op, "instance name is required")
	}

	team := in.Team
	if team == "" {
		team = actor.Team
	}

	now := r.now().UTC()
	request := &models.Request{
		ID:             uuid.NewString(),
		RequesterID:    actor.ID,
		RequesterName:  actor.Name,
		DatabaseKind:   in.DatabaseKind,
		InstanceName:   in.InstanceName,
		DatabaseName:   in.DatabaseName,
		SubmissionKind: in.SubmissionKind,
		QueryContent:   in.QueryContent,
		ScriptPath:     in.ScriptPath,
		Justification:  in.Justification,
		Team:           team,
		Status:         models.RequestStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := request.Validate(); err != nil {
		return nil, screen.Result{}, newError(op, CodeInvalidArgument, err.Error(), errors.Join(ErrInvalidArgument, err))
	}

	if request.SubmissionKind == models.SubmissionKindScript && (r.scripts == nil || !r.scripts.Exists(request.ScriptPath)) {
		return nil, screen.Result{}, invalidArgument(op, "script file not found: "+request.ScriptPath)
	}

	if _, err := r.resolver.Resolve(request.InstanceName, request.DatabaseKind); err != nil {
		if errors.Is(err, registry.ErrInstanceNotFound) {
			return nil, screen.Result{}, newError(op, CodeInstanceNotFound, err.Error(), errors.Join(ErrInstanceNotFound, err))
		}

		return nil, screen.Result{}, fmt.Errorf("failed to resolve instance: %w", err)
	}

	if err := r.persistence.RequestRepository().Create(ctx, request); err != nil {
		return nil, screen.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	result := r.ScreenRequest(ctx, request)

	if r.observer != nil {
		r.observer.ObserveTransition(string(models.RequestStatusPending))

		if result.IsDestructive {
			r.observer.ObserveDestructive(string(request.DatabaseKind))
		}
	}

	r.logger.InfoContext(ctx, "Request submitted",
		"request_id", request.ID,
		"requester_id", actor.ID,
		"instance", request.InstanceName,
		"destructive", result.IsDestructive,
	)

	r.notify(ctx, events.RequestSubmitted, request, actor.ID)

	return request, result, nil
}

// Screen runs the destructive-operation screen on content.
func (r *Request) Screen(content string, dbKind models.DatabaseKind, submission models.SubmissionKind) screen.Result {
	return screen.Screen(content, dbKind, submission)
}

// ScreenRequest screens a stored request. Script submissions are screened on
// the script text, not on the reference.
func (r *Request) ScreenRequest(ctx context.Context, request *models.Request) screen.Result {
	content := request.Content()

	if request.SubmissionKind == models.SubmissionKindScript && r.scripts != nil {
		source, err := r.scripts.Read(request.ScriptPath)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to read script for screening", "request_id", request.ID, "error", err)

			return screen.Result{Warnings: []string{}}
		}

		content = string(source)
	}

	return r.Screen(content, request.DatabaseKind, request.SubmissionKind)
}

// Get returns a request by ID.
func (r *Request) Get(ctx context.Context, id string) (*models.Request, error) {
	const op = "Get"

	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound(op, "request not found: "+id)
	}

	request, err := r.persistence.RequestRepository().GetByID(ctx, id)
	if err != nil {
		if persistence.IsRequestNotFound(err) {
			return nil, notFound(op, "request not found: "+id)
		}

		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return request, nil
}

// GetForActor returns the request if actor may view it.
func (r *Request) GetForActor(ctx context.Context, actor models.Actor, id string) (*models.Request, error) {
	request, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !actor.CanView(request) {
		return nil, forbidden("Get", "request is outside your scope")
	}

	return request, nil
}

// ListRequest narrows List.
type ListRequest struct {
	Status *models.RequestStatus
	Team   string
	Limit  int
	Offset int
}

// List returns requests visible to actor, newest first. Developers see their own
// requests, managers their team's and admins everything.
func (r *Request) List(ctx context.Context, actor models.Actor, in ListRequest) ([]*models.Request, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalidArgument("List", fmt.Sprintf("unknown status %q", *in.Status))
	}

	filter := persistence.RequestFilter{
		Status: in.Status,
		Team:   in.Team,
		Limit:  in.Limit,
		Offset: in.Offset,
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleManager:
		filter.Team = actor.Team
	default:
		filter.RequesterID = actor.ID
		filter.Team = ""
	}

	requests, err := r.persistence.RequestRepository().List(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return requests, nil
}

// Approve moves a PENDING request to APPROVED, runs it, records the execution
// and stores the final status. A failed execution is not an error: the
// returned request is FAILED.
func (r *Request) Approve(ctx context.Context, id string, approver models.Actor) (*models.Request, error) {
	const op = "Approve"

	if _, err := r.reviewable(ctx, op, id, approver); err != nil {
		return nil, err
	}

	approved, err := r.persistence.RequestRepository().Transition(ctx, id, models.RequestStatusPending, func(req *models.Request) {
		decided := r.now().UTC()
		req.Status = models.RequestStatusApproved
		req.ApproverID = approver.ID
		req.ApprovedAt = &decided
	})
	if err != nil {
		return nil, r.transitionError(op, id, err)
	}

	r.observeTransition(models.RequestStatusApproved)
	r.logger.InfoContext(ctx, "Request approved", "request_id", id, "approver_id", approver.ID)

	outcome := r.dispatcher.Dispatch(ctx, approved)

	// Once APPROVED the request must reach a terminal status with a record,
	// even if the caller gave up during dispatch.
	finishCtx := context.WithoutCancel(ctx)

	final := models.RequestStatusExecuted
	if !outcome.Success {
		final = models.RequestStatusFailed
	}

	recordErr := r.persistence.ExecutionRepository().Create(finishCtx, r.executionFrom(approved.ID, outcome))
	if recordErr != nil {
		r.logger.ErrorContext(finishCtx, "Failed to record execution", "request_id", id, "error", recordErr)
		final = models.RequestStatusFailed
	}

	finished, err := r.persistence.RequestRepository().Transition(finishCtx, id, models.RequestStatusApproved, func(req *models.Request) {
		req.Status = final
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize request %s: %w", id, err)
	}

	r.observeTransition(final)

	eventType, _ := events.EventForStatus(final)
	r.notify(finishCtx, eventType, finished, approver.ID, outcome.Error)

	if recordErr != nil {
		return nil, fmt.Errorf("failed to record execution for request %s: %w", id, recordErr)
	}

	return finished, nil
}

// Reject moves a PENDING request to REJECTED. No execution is recorded.
func (r *Request) Reject(ctx context.Context, id string, approver models.Actor, reason string) (*models.Request, error) {
	const op = "Reject"

	if _, err := r.reviewable(ctx, op, id, approver); err != nil {
		return nil, err
	}

	rejected, err := r.persistence.RequestRepository().Transition(ctx, id, models.RequestStatusPending, func(req *models.Request) {
		decided := r.now().UTC()
		req.Status = models.RequestStatusRejected
		req.ApproverID = approver.ID
		req.ApprovedAt = &decided
		req.RejectionReason = &reason
	})
	if err != nil {
		return nil, r.transitionError(op, id, err)
	}

	r.observeTransition(models.RequestStatusRejected)
	r.logger.InfoContext(ctx, "Request rejected", "request_id", id, "approver_id", approver.ID)
	r.notify(ctx, events.RequestRejected, rejected, approver.ID)

	return rejected, nil
}

// UpdateStatus approves or rejects depending on status. Any other status is invalid.
func (r *Request) UpdateStatus(ctx context.Context, id string, approver models.Actor, status models.RequestStatus, reason string) (*models.Request, error) {
	switch status {
	case models.RequestStatusApproved:
		return r.Approve(ctx, id, approver)
	case models.RequestStatusRejected:
		return r.Reject(ctx, id, approver, reason)
	default:
		return nil, invalidArgument("UpdateStatus", fmt.Sprintf("status must be %s or %s, got %q",
			models.RequestStatusApproved, models.RequestStatusRejected, status))
	}
}

// ExecutionDetails is an execution record with its artifact availability.
type ExecutionDetails struct {
	*models.Execution
	retention.Availability
}

// GetExecution returns the execution of a request. Artifact availability is
// computed from the retention window without probing storage.
func (r *Request) GetExecution(ctx context.Context, requestID string) (*ExecutionDetails, error) {
	const op = "GetExecution"

	if _, err := uuid.Parse(requestID); err != nil {
		return nil, notFound(op, "execution not found for request "+requestID)
	}

	record, err := r.persistence.ExecutionRepository().GetByRequestID(ctx, requestID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, notFound(op, "execution not found for request "+requestID)
		}

		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return &ExecutionDetails{
		Execution:    record,
		Availability: r.policy.Evaluate(record, r.now()),
	}, nil
}

func (r *Request) reviewable(ctx context.Context, op, id string, approver models.Actor) (*models.Request, error) {
	request, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusPending {
		return nil, invalidState(op, fmt.Sprintf("request is %s, expected %s", request.Status, models.RequestStatusPending))
	}

	if !approver.CanReview(request.Team) {
		return nil, forbidden(op, "approver scope does not cover team "+request.Team)
	}

	return request, nil
}

func (r *Request) transitionError(op, id string, err error) error {
	switch {
	case persistence.IsStatusConflict(err):
		return invalidState(op, "request is no longer "+string(models.RequestStatusPending))
	case persistence.IsRequestNotFound(err):
		return notFound(op, "request not found: "+id)
	default:
		return fmt.Errorf("failed to transition request %s: %w", id, err)
	}
}

func (r *Request) executionFrom(requestID string, outcome execution.Outcome) *models.Execution {
	now := r.now().UTC()

	record := &models.Execution{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		Status:      models.ExecutionStatusSuccess,
		IsTruncated: outcome.IsTruncated,
		TotalRows:   outcome.TotalRows,
		ExecutedAt:  outcome.ExecutedAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = now
	}

	if outcome.Success {
		record.ResultData = outcome.Payload
		if outcome.IsTruncated {
			record.ResultFilePath = outcome.ResultFilePath
		}
	} else {
		message := outcome.Error
		record.Status = models.ExecutionStatusFailure
		record.ErrorMessage = &message
		record.IsTruncated = false
		record.TotalRows = nil
	}

	return record
}

func (r *Request) observeTransition(status models.RequestStatus) {
	if r.observer != nil {
		r.observer.ObserveTransition(string(status))
	}
}

func (r *Request) notify(ctx context.Context, eventType events.EventType, request *models.Request, actorID string, errMessage ...string) {
	if r.notifier == nil {
		return
	}

	event := events.NewRequestEvent(eventType, request, actorID)
	if len(errMessage) > 0 {
		event.Error = errMessage[0]
	}

	r.notifier.Send(ctx, event)
}
