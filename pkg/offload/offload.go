// Package offload caps in-band result size and moves oversized results to
// object storage as CSV.
package offload

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/storage"
	"github.com/google/uuid"
)

const (
	// DefaultLimit is the number of rows returned in-band.
	DefaultLimit = 100

	// Folder is the storage folder offloaded results are written to.
	Folder = "query-results"

	contentType = "text/csv"
)

// ErrOffloadFailed wraps upload failures.
var ErrOffloadFailed = errors.New("failed to offload result")

var unsafeSourceChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Observer is notified about each offload attempt.
type Observer interface {
	ObserveOffload(success bool)
}

// Truncator applies the in-band row limit.
type Truncator struct {
	store    storage.Store
	limit    int
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Truncator)

// WithLimit overrides DefaultLimit.
func WithLimit(limit int) Option {
	return func(t *Truncator) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// WithObserver attaches an offload observer, typically the metrics registry.
func WithObserver(o Observer) Option {
	return func(t *Truncator) {
		t.observer = o
	}
}

// WithClock overrides the clock used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(t *Truncator) {
		t.now = now
	}
}

func NewTruncator(store storage.Store, logger *slog.Logger, opts ...Option) *Truncator {
	t := &Truncator{
		store:  store,
		limit:  DefaultLimit,
		logger: logger.With("module", "offload"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Limit returns the in-band row limit.
func (t *Truncator) Limit() int {
	return t.limit
}

// Apply returns rows unchanged when they fit the limit. Otherwise the whole set
// is uploaded as CSV and the first Limit rows are returned with its URL.
func (t *Truncator) Apply(ctx context.Context, rows []*models.Row, source string) (*models.QueryResult, error) {
	if rows == nil {
		rows = []*models.Row{}
	}

	total := len(rows)
	if total <= t.limit {
		return &models.QueryResult{Rows: rows, IsTruncated: false, TotalRows: total}, nil
	}

	data, err := EncodeCSV(rows)
	if err != nil {
		t.observe(false)

		return nil, fmt.Errorf("%w: %w", ErrOffloadFailed, err)
	}

	name := t.objectName(source)

	url, err := t.store.Upload(ctx, name, data, contentType)
	if err != nil {
		t.observe(false)
		t.logger.ErrorContext(ctx, "Failed to upload result artifact", "name", name, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrOffloadFailed, err)
	}

	t.observe(true)
	t.logger.InfoContext(ctx, "Offloaded oversized result", "name", name, "total_rows", total)

	return &models.QueryResult{
		Rows:           rows[:t.limit],
		IsTruncated:    true,
		TotalRows:      total,
		ResultFilePath: &url,
	}, nil
}

func (t *Truncator) observe(success bool) {
	if t.observer != nil {
		t.observer.ObserveOffload(success)
	}
}

func (t *Truncator) objectName(source string) string {
	clean := unsafeSourceChars.ReplaceAllString(source, "_")
	if clean == "" {
		clean = "result"
	}

	return fmt.Sprintf("%s/%s_%s_%s.csv", Folder, clean, t.now().UTC().Format("20060102T150405Z"), uuid.NewString())
}

// EncodeCSV writes rows as CSV. The header is the first row's field names in
// order; later rows are projected onto that header.
func EncodeCSV(rows []*models.Row) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if len(rows) == 0 {
		w.Flush()

		return buf.Bytes(), w.Error()
	}

	header := rows[0].Keys()
	if err := w.Write(header); err != nil {
		return nil, err
	}

	record := make([]string, len(header))

	for _, row := range rows {
		for i, key := range header {
			v, _ := row.Get(key)
			record[i] = FormatCell(v)
		}

		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()

	return buf.Bytes(), w.Error()
}

// FormatCell renders one value for CSV output.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}

		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, *models.Row:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// ParseCSV reads an offloaded artifact back into its header and records.
// encoding/csv normalizes \r\n inside quoted fields to \n, so CR bytes in
// cell values do not survive the round trip. The artifact itself keeps them.
func ParseCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	if len(records) == 0 {
		return []string{}, [][]string{}, nil
	}

	return records[0], records[1:], nil
}
