package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
	"github.com/lib/pq"
)

const requestColumns = `
			id
		  , requester_id
		  , requester_name
		  , database_kind
		  , instance_name
		  , database_name
		  , submission_kind
		  , query_content
		  , script_path
		  , justification
		  , team
		  , status
		  , approver_id
		  , approved_at
		  , rejection_reason
		  , created_at
		  , updated_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// RequestRepository handles request-related database operations.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		request.ID,
		request.RequesterID,
		request.RequesterName,
		request.DatabaseKind,
		request.InstanceName,
		request.DatabaseName,
		request.SubmissionKind,
		queryContentArg(request),
		scriptPathArg(request),
		request.Justification,
		request.Team,
		request.Status,
		nullString(request.ApproverID),
		request.ApprovedAt,
		request.RejectionReason,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewRequestError("Create", request.ID, persistence.ErrRequestAlreadyExists)
		}

		return persistence.NewRequestError("Create", request.ID, err)
	}

	return nil
}

func queryContentArg(request *models.Request) sql.NullString {
	return sql.NullString{String: request.QueryContent, Valid: request.SubmissionKind == models.SubmissionKindQuery}
}

func scriptPathArg(request *models.Request) sql.NullString {
	return sql.NullString{String: request.ScriptPath, Valid: request.SubmissionKind == models.SubmissionKindScript}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		request         models.Request
		queryContent    sql.NullString
		scriptPath      sql.NullString
		approverID      sql.NullString
		approvedAt      sql.NullTime
		rejectionReason sql.NullString
	)

	err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&request.RequesterName,
		&request.DatabaseKind,
		&request.InstanceName,
		&request.DatabaseName,
		&request.SubmissionKind,
		&queryContent,
		&scriptPath,
		&request.Justification,
		&request.Team,
		&request.Status,
		&approverID,
		&approvedAt,
		&rejectionReason,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.QueryContent = queryContent.String
	request.ScriptPath = scriptPath.String
	request.ApproverID = approverID.String

	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		request.ApprovedAt = &t
	}

	if rejectionReason.Valid {
		reason := rejectionReason.String
		request.RejectionReason = &reason
	}

	request.CreatedAt = request.CreatedAt.UTC()
	request.UpdatedAt = request.UpdatedAt.UTC()

	return &request, nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	return r.get(ctx, r.db, id, false)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *RequestRepository) get(ctx context.Context, q queryer, id string, forUpdate bool) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	request, err := scanRequest(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, persistence.NewRequestError("GetByID", id, err)
	}

	return request, nil
}

func (r *RequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.Request, error) {
	filter = filter.Normalize()

	var (
		conditions []string
		args       []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.RequesterID != "" {
		add("requester_id", filter.RequesterID)
	}

	if filter.Team != "" {
		add("team", filter.Team)
	}

	if filter.Status != nil {
		add("status", *filter.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	defer func(ctx context.Context, r *RequestRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	requests := make([]*models.Request, 0)

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

// Transition locks the row, checks the expected status, and writes the
// mutated decision fields in one transaction.
func (r *RequestRepository) Transition(ctx context.Context, id string, from models.RequestStatus, mutate func(*models.Request)) (*models.Request, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewRequestError("Transition", id, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	request, err := r.get(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	if request.Status != from {
		return nil, persistence.NewRequestError("Transition", id, persistence.ErrStatusConflict)
	}

	mutate(request)
	request.ID = id
	request.UpdatedAt = time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, approver_id = $2, approved_at = $3, rejection_reason = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`,
		request.Status,
		nullString(request.ApproverID),
		request.ApprovedAt,
		request.RejectionReason,
		request.UpdatedAt,
		id,
		from,
	)
	if err != nil {
		return nil, persistence.NewRequestError("Transition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewRequestError("Transition", id, err)
	}

	if affected != 1 {
		return nil, persistence.NewRequestError("Transition", id, persistence.ErrStatusConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, persistence.NewRequestError("Transition", id, err)
	}

	return request, nil
}
