package models

import (
	"bytes"
	"encoding/json"
)

// Row is one result record with its field order preserved.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// RowFromPairs builds a row from alternating key/value arguments.
func RowFromPairs(pairs ...any) *Row {
	row := NewRow()

	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		row.Set(key, pairs[i+1])
	}

	return row
}

// Set assigns a field, appending the key on first use.
func (r *Row) Set(key string, value any) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}

	r.values[key] = value
}

// Get returns the value of a field.
func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]

	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Row) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r *Row) Len() int {
	return len(r.keys)
}

// MarshalJSON encodes the row as a JSON object in field order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// QueryResult is the normalized payload of a read-shaped execution.
type QueryResult struct {
	Rows           []*Row  `json:"rows"`
	IsTruncated    bool    `json:"is_truncated"`
	TotalRows      int     `json:"total_rows"`
	ResultFilePath *string `json:"result_file_path"`
}

// DocumentMutation is the payload of a non-read document-store method.
type DocumentMutation struct {
	Method   string         `json:"method"`
	Result   map[string]any `json:"result"`
	Affected int64          `json:"affected"`
}

// ScriptResult is the payload of a sandboxed script execution.
type ScriptResult struct {
	Result any      `json:"result"`
	Logs   []string `json:"logs"`
	Errors []string `json:"errors"`
}
