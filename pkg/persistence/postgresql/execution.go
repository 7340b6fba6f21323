package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `
			id
		  , request_id
		  , status
		  , result_data
		  , error_message
		  , is_truncated
		  , total_rows
		  , result_file_path
		  , executed_at
		  , created_at
		  , updated_at`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	var resultData any
	if len(execution.ResultData) > 0 {
		resultData = []byte(execution.ResultData)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		execution.ID,
		execution.RequestID,
		execution.Status,
		resultData,
		execution.ErrorMessage,
		execution.IsTruncated,
		execution.TotalRows,
		execution.ResultFilePath,
		execution.ExecutedAt,
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", persistence.ErrExecutionAlreadyExists, execution.RequestID)
		}

		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution      models.Execution
		resultData     []byte
		errorMessage   sql.NullString
		totalRows      sql.NullInt64
		resultFilePath sql.NullString
	)

	err := row.Scan(
		&execution.ID,
		&execution.RequestID,
		&execution.Status,
		&resultData,
		&errorMessage,
		&execution.IsTruncated,
		&totalRows,
		&resultFilePath,
		&execution.ExecutedAt,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(resultData) > 0 {
		execution.ResultData = resultData
	}

	if errorMessage.Valid {
		msg := errorMessage.String
		execution.ErrorMessage = &msg
	}

	if totalRows.Valid {
		total := int(totalRows.Int64)
		execution.TotalRows = &total
	}

	if resultFilePath.Valid {
		path := resultFilePath.String
		execution.ResultFilePath = &path
	}

	execution.ExecutedAt = execution.ExecutedAt.UTC()
	execution.CreatedAt = execution.CreatedAt.UTC()
	execution.UpdatedAt = execution.UpdatedAt.UTC()

	return &execution, nil
}

func (r *ExecutionRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE request_id = $1`, requestID)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrExecutionNotFound, requestID)
		}

		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListExpiredArtifacts(ctx context.Context, from, to time.Time) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE is_truncated AND result_file_path IS NOT NULL
		  AND created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired artifacts: %w", err)
	}

	defer func(ctx context.Context, r *ExecutionRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}
