package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultDispatchPageSize = 50

type DispatchStore struct {
	repo repository.Repository[*dispatchRecord]
}

func NewDispatchStore(db *bun.DB) (*DispatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*dispatchRecord](db, dispatchHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dispatch repository wiring: %w", err)
		}
	}
	return &DispatchStore{repo: repo}, nil
}

func (s *DispatchStore) Record(ctx context.Context, input core.DispatchRecord) (core.DispatchRecord, error) {
	if s == nil || s.repo == nil {
		return core.DispatchRecord{}, fmt.Errorf("sqlstore: dispatch store is not configured")
	}
	if strings.TrimSpace(input.Fingerprint.String()) == "" {
		return core.DispatchRecord{}, fmt.Errorf("sqlstore: fingerprint is required")
	}
	if !input.Channel.Valid() {
		return core.DispatchRecord{}, fmt.Errorf("sqlstore: invalid channel %q", input.Channel)
	}
	if strings.TrimSpace(input.Sink) == "" {
		return core.DispatchRecord{}, fmt.Errorf("sqlstore: sink is required")
	}

	id := strings.TrimSpace(input.ID)
	if parseUUID(id) == uuid.Nil {
		id = uuid.NewString()
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	record := &dispatchRecord{
		ID:          id,
		Fingerprint: input.Fingerprint.String(),
		EventKind:   string(input.Kind),
		Channel:     string(input.Channel),
		Sink:        strings.TrimSpace(strings.ToLower(input.Sink)),
		Actor:       input.Actor,
		Repository:  input.Repository,
		Message:     input.Message,
		Status:      string(input.Status),
		Error:       strings.TrimSpace(input.Error),
		CreatedAt:   createdAt.UTC(),
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.DispatchRecord{}, err
	}
	return dispatchRecordToDomain(created), nil
}

func (s *DispatchStore) List(ctx context.Context, filter core.DispatchFilter) ([]core.DispatchRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: dispatch store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDispatchPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if channel := strings.TrimSpace(string(filter.Channel)); channel != "" {
		selectors = append(selectors, repository.SelectBy("channel", "=", channel))
	}
	if repo := strings.TrimSpace(filter.Repository); repo != "" {
		selectors = append(selectors, repository.SelectBy("repository", "=", repo))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.DispatchRecord, 0, len(records))
	for _, record := range records {
		out = append(out, dispatchRecordToDomain(record))
	}
	return out, nil
}

func dispatchRecordToDomain(record *dispatchRecord) core.DispatchRecord {
	if record == nil {
		return core.DispatchRecord{}
	}
	return core.DispatchRecord{
		ID:          record.ID,
		Fingerprint: core.Fingerprint(record.Fingerprint),
		Kind:        core.EventKind(record.EventKind),
		Channel:     core.Channel(record.Channel),
		Sink:        record.Sink,
		Actor:       record.Actor,
		Repository:  record.Repository,
		Message:     record.Message,
		Status:      core.DispatchStatus(record.Status),
		Error:       record.Error,
		CreatedAt:   record.CreatedAt.UTC(),
	}
}
