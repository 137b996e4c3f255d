package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/goliatone/go-hookrelay/core"
)

const defaultListLimit = 50

// MemoryLedger keeps dispatch records in process. Newest rows list first.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []core.DispatchRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Record(_ context.Context, record core.DispatchRecord) (core.DispatchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return record, nil
}

func (l *MemoryLedger) List(_ context.Context, filter core.DispatchFilter) ([]core.DispatchRecord, error) {
	l.mu.RLock()
	matched := make([]core.DispatchRecord, 0, len(l.records))
	for _, record := range l.records {
		if filter.Channel != "" && record.Channel != filter.Channel {
			continue
		}
		if filter.Repository != "" && record.Repository != filter.Repository {
			continue
		}
		matched = append(matched, record)
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

func page(records []core.DispatchRecord, limit int, offset int) []core.DispatchRecord {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []core.DispatchRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

var _ core.DispatchLedger = (*MemoryLedger)(nil)
