package strategy

import (
	"context"
	"time"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/telemetry"
	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Instrument wraps s so every search and mutation is recorded in m.
// A nil m returns s unchanged.
func Instrument(s Strategy, m *telemetry.Metrics) Strategy {
	if m == nil || s == nil {
		return s
	}
	return &instrumented{Strategy: s, metrics: m}
}

type instrumented struct {
	Strategy
	metrics *telemetry.Metrics
}

// Unwrap returns the wrapped strategy.
func (i *instrumented) Unwrap() Strategy { return i.Strategy }

func (i *instrumented) UpsertDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	err := i.Strategy.UpsertDocuments(ctx, docs)
	if err == nil {
		i.metrics.ObserveMutation(i.Name(), telemetry.OpUpsert, len(docs))
	}
	return err
}

func (i *instrumented) DeleteDocuments(ctx context.Context, docs []document.SearchableDocument) error {
	err := i.Strategy.DeleteDocuments(ctx, docs)
	if err == nil {
		i.metrics.ObserveMutation(i.Name(), telemetry.OpDelete, len(docs))
	}
	return err
}

func (i *instrumented) DeleteDocument(ctx context.Context, chunkID string) error {
	err := i.Strategy.DeleteDocument(ctx, chunkID)
	if err == nil {
		i.metrics.ObserveMutation(i.Name(), telemetry.OpDelete, 1)
	}
	return err
}

func (i *instrumented) ClearIndex(ctx context.Context) error {
	err := i.Strategy.ClearIndex(ctx)
	if err == nil {
		i.metrics.ObserveMutation(i.Name(), telemetry.OpClear, 0)
	}
	return err
}

func (i *instrumented) Search(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]any, error) {
	start := time.Now()
	out, err := i.Strategy.Search(ctx, query, filter, opts...)
	i.metrics.ObserveSearch(i.Name(), query, len(out), time.Since(start), codeOf(err))
	return out, err
}

func (i *instrumented) RawSearch(ctx context.Context, query string, filter document.Filter, opts ...SearchOption) ([]document.SearchableDocument, error) {
	start := time.Now()
	out, err := i.Strategy.RawSearch(ctx, query, filter, opts...)
	i.metrics.ObserveSearch(i.Name(), query, len(out), time.Since(start), codeOf(err))
	return out, err
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	if code := docerrors.GetCode(err); code != "" {
		return code
	}
	return docerrors.ErrCodeInternal
}
