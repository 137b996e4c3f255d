package query

import (
	"context"

	"github.com/goliatone/go-hookrelay/core"
)

type DispatchReader interface {
	List(ctx context.Context, filter core.DispatchFilter) ([]core.DispatchRecord, error)
}

type Previewer interface {
	Preview(payload core.Payload) (core.Result, error)
}

type ListDispatchesQuery struct {
	reader DispatchReader
}

func NewListDispatchesQuery(reader DispatchReader) *ListDispatchesQuery {
	return &ListDispatchesQuery{reader: reader}
}

func (q *ListDispatchesQuery) Query(ctx context.Context, msg ListDispatchesMessage) ([]core.DispatchRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dispatch ledger is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.List(ctx, msg.Filter)
}

type ClassifyEventQuery struct {
	previewer Previewer
}

func NewClassifyEventQuery(previewer Previewer) *ClassifyEventQuery {
	return &ClassifyEventQuery{previewer: previewer}
}

func (q *ClassifyEventQuery) Query(_ context.Context, msg ClassifyEventMessage) (core.Result, error) {
	if q == nil || q.previewer == nil {
		return core.Result{}, queryDependencyError("query: relay previewer is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Result{}, err
	}
	return q.previewer.Preview(msg.Payload)
}
