package offload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ storage.Store }

func (failingStore) Upload(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unreachable")
}

type countingObserver struct{ ok, failed int }

func (c *countingObserver) ObserveOffload(success bool) {
	if success {
		c.ok++
	} else {
		c.failed++
	}
}

func makeRows(n int) []*models.Row {
	rows := make([]*models.Row, n)
	for i := range rows {
		rows[i] = models.RowFromPairs("id", i, "name", fmt.Sprintf("user %d", i))
	}

	return rows
}

func newTruncator(t *testing.T, opts ...Option) (*Truncator, *storage.FileStore) {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir(), "https://files.example.com")
	require.NoError(t, err)

	return NewTruncator(store, slog.Default(), opts...), store
}

func TestApply_WithinLimit(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 100} {
		truncator, _ := newTruncator(t)

		result, err := truncator.Apply(context.Background(), makeRows(n), "pg")
		require.NoError(t, err)
		assert.False(t, result.IsTruncated)
		assert.Equal(t, n, result.TotalRows)
		assert.Len(t, result.Rows, n)
		assert.Nil(t, result.ResultFilePath)
	}
}

func TestApply_OffloadsOversizedResult(t *testing.T) {
	t.Parallel()

	observer := &countingObserver{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	truncator, store := newTruncator(t, WithObserver(observer), WithClock(func() time.Time { return fixed }))

	rows := makeRows(101)
	result, err := truncator.Apply(context.Background(), rows, "orders db")
	require.NoError(t, err)

	assert.True(t, result.IsTruncated)
	assert.Equal(t, 101, result.TotalRows)
	assert.Len(t, result.Rows, 100)
	require.NotNil(t, result.ResultFilePath)
	assert.True(t, strings.HasPrefix(*result.ResultFilePath, "https://files.example.com/query-results/orders_db_20260301T120000Z_"))
	assert.Equal(t, 1, observer.ok)

	path, err := store.Path(*result.ResultFilePath)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	header, records, err := ParseCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, header)
	assert.Len(t, records, 101)
	assert.Equal(t, []string{"100", "user 100"}, records[100])
}

func TestApply_UploadFailurePropagates(t *testing.T) {
	t.Parallel()

	observer := &countingObserver{}
	truncator := NewTruncator(failingStore{}, slog.Default(), WithObserver(observer), WithLimit(2))

	_, err := truncator.Apply(context.Background(), makeRows(3), "pg")
	require.ErrorIs(t, err, ErrOffloadFailed)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.Equal(t, 1, observer.failed)
}

func TestCSVRoundTrip_QuotedFields(t *testing.T) {
	t.Parallel()

	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []*models.Row{
		models.RowFromPairs("note", `a, "quoted" value`, "body", "line1\nline2", "at", when, "missing", nil),
		models.RowFromPairs("note", "plain", "body", "x\r\ny", "at", when, "missing", map[string]any{"k": 1}),
	}

	data, err := EncodeCSV(rows)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a, ""quoted"" value"`)

	header, records, err := ParseCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"note", "body", "at", "missing"}, header)
	require.Len(t, records, 2)
	assert.Equal(t, []string{`a, "quoted" value`, "line1\nline2", "2026-01-02T03:04:05Z", ""}, records[0])
	assert.Equal(t, `{"k":1}`, records[1][3])

	// The artifact keeps CRLF; reading it back collapses it to LF.
	assert.Contains(t, string(data), "\"x\r\ny\"")
	assert.Equal(t, "x\ny", records[1][1])
}

func TestFormatCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"bytes", []byte("raw"), "raw"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"slice", []any{1, "a"}, `[1,"a"]`},
		{"float", 1.5, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatCell(tt.in))
		})
	}
}
