package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/offload"
	_ "github.com/lib/pq"
)

// DefaultStatementTimeout bounds every relational statement.
const DefaultStatementTimeout = 30 * time.Second

// Opener opens a database handle for a DSN.
type Opener func(dsn string) (*sql.DB, error)

func openPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// Relational runs a single statement against a PostgreSQL instance over one
// dedicated connection.
type Relational struct {
	credentials *CredentialResolver
	truncator   *offload.Truncator
	open        Opener
	timeout     time.Duration
	logger      *slog.Logger
}

type RelationalOption func(*Relational)

// WithOpener replaces the database opener.
func WithOpener(open Opener) RelationalOption {
	return func(r *Relational) {
		r.open = open
	}
}

// WithStatementTimeout overrides DefaultStatementTimeout.
func WithStatementTimeout(d time.Duration) RelationalOption {
	return func(r *Relational) {
		r.timeout = d
	}
}

func NewRelational(logger *slog.Logger, creds *CredentialResolver, truncator *offload.Truncator, opts ...RelationalOption) *Relational {
	r := &Relational{
		credentials: creds,
		truncator:   truncator,
		open:        openPostgres,
		timeout:     DefaultStatementTimeout,
		logger:      logger.With("module", "relational_executor"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// DSN builds a lib/pq connection URL.
func DSN(desc models.ConnectionDescriptor, database string, creds models.Credentials) string {
	port := desc.Port
	if port == 0 {
		port = 5432
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(desc.Host, strconv.Itoa(port)),
		Path:   "/" + database,
	}

	if !creds.Empty() {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}

	if desc.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{desc.SSLMode}}.Encode()
	}

	return u.String()
}

// Execute runs statement and returns its rows through the truncator.
func (r *Relational) Execute(ctx context.Context, desc models.ConnectionDescriptor, database, statement string) (*models.QueryResult, error) {
	creds, err := r.credentials.Require(desc)
	if err != nil {
		return nil, err
	}

	db, err := r.open(DSN(desc, database, creds))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", r.timeout.Milliseconds())); err != nil {
		return nil, err
	}

	rows, err := r.query(ctx, conn, statement)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Statement completed", "instance", desc.Name, "rows", len(rows))

	return r.truncator.Apply(ctx, rows, desc.Name)
}

func (r *Relational) query(ctx context.Context, conn *sql.Conn, statement string) ([]*models.Row, error) {
	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []*models.Row{}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := models.NewRow()

		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}

			row.Set(column, value)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
