// Package recordstore reads domain records from a JSON file and watches that
// file for changes. It is the record source behind the docsearch CLI.
//
// The file holds a JSON array of objects:
//
//	[
//	  {"id": "m1", "updated_at": "2024-05-01T10:00:00Z", "subject": "hello", "body": "..."},
//	  {"id": "m2", "subject": "test document"}
//	]
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Aman-CERP/docsearch/pkg/adapter"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Default field names.
const (
	DefaultIDField       = "id"
	DefaultModifiedField = "updated_at"
)

// FileSource is an adapter.RecordSource over a JSON records file.
type FileSource struct {
	path          string
	idField       string
	modifiedField string
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithIDField names the field holding the record id.
func WithIDField(name string) FileOption {
	return func(f *FileSource) { f.idField = name }
}

// WithModifiedField names the field used as the change marker. Records
// without it are compared by payload hash.
func WithModifiedField(name string) FileOption {
	return func(f *FileSource) { f.modifiedField = name }
}

// NewFileSource returns a source reading path on every Records call.
func NewFileSource(path string, opts ...FileOption) *FileSource {
	f := &FileSource{
		path:          path,
		idField:       DefaultIDField,
		modifiedField: DefaultModifiedField,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the records file path.
func (f *FileSource) Path() string {
	return f.path
}

// Records implements adapter.RecordSource.
func (f *FileSource) Records(_ context.Context) ([]adapter.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	return f.parse(data)
}

func (f *FileSource) parse(data []byte) ([]adapter.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("parse records file %s: %w", f.path, err)
	}

	records := make([]adapter.Record, 0, len(rows))
	for i, row := range rows {
		id, ok := scalarString(row[f.idField])
		if !ok || id == "" {
			return nil, fmt.Errorf("record %d in %s: missing %q field", i, f.path, f.idField)
		}
		modified, _ := scalarString(row[f.modifiedField])
		records = append(records, adapter.Record{ID: id, Modified: modified, Payload: row})
	}
	return records, nil
}

// FieldMapper indexes each non-empty text field of a record as its own
// chunk, with chunk id "<record id>#<field>". Scalar values of the metadata
// fields are copied onto every chunk, along with "field" naming the source.
func FieldMapper(textFields, metadataFields []string) adapter.Mapper {
	return func(r adapter.Record) []document.SearchableDocument {
		row, ok := r.Payload.(map[string]any)
		if !ok {
			return nil
		}

		meta := make(map[string]any, len(metadataFields))
		for _, name := range metadataFields {
			if v, ok := metadataValue(row[name]); ok {
				meta[name] = v
			}
		}

		var docs []document.SearchableDocument
		for _, name := range textFields {
			text, _ := row[name].(string)
			if strings.TrimSpace(text) == "" {
				continue
			}
			m := make(map[string]any, len(meta)+1)
			for k, v := range meta {
				m[k] = v
			}
			m["field"] = name
			docs = append(docs, document.SearchableDocument{
				ChunkID:     r.ID + "#" + name,
				TextContent: text,
				Metadata:    m,
			})
		}
		return docs
	}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return fmt.Sprint(x), true
	default:
		return "", false
	}
}

// metadataValue converts a decoded JSON value into a filterable scalar.
// Integral numbers become int64, others float64.
func metadataValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), true
	default:
		return nil, false
	}
}
