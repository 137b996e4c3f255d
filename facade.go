package hookrelay

import (
	"fmt"

	relaycommand "github.com/goliatone/go-hookrelay/command"
	"github.com/goliatone/go-hookrelay/core"
	relayquery "github.com/goliatone/go-hookrelay/query"
)

type RelayService interface {
	relaycommand.Submitter
	relayquery.Previewer
}

type Commands struct {
	SubmitEvent     *relaycommand.SubmitEventCommand
	PruneSeenEvents *relaycommand.PruneSeenEventsCommand
}

type Queries struct {
	ListDispatches *relayquery.ListDispatchesQuery
	ClassifyEvent  *relayquery.ClassifyEventQuery
}

type Facade struct {
	relay    RelayService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	pruner core.Pruner
	ledger relayquery.DispatchReader
}

func WithPruner(pruner core.Pruner) FacadeOption {
	return func(options *facadeOptions) {
		options.pruner = pruner
	}
}

func WithDispatchReader(reader relayquery.DispatchReader) FacadeOption {
	return func(options *facadeOptions) {
		options.ledger = reader
	}
}

// NewFacade builds the command and query handlers around relay. Without an
// explicit pruner the relay's deduplicator is used when it can prune.
func NewFacade(relay RelayService, opts ...FacadeOption) (*Facade, error) {
	if relay == nil {
		return nil, fmt.Errorf("hookrelay: relay is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.pruner == nil {
		cfg.pruner = resolvePruner(relay)
	}

	facade := &Facade{relay: relay}
	facade.commands = Commands{
		SubmitEvent: relaycommand.NewSubmitEventCommand(relay),
	}
	if cfg.pruner != nil {
		facade.commands.PruneSeenEvents = relaycommand.NewPruneSeenEventsCommand(cfg.pruner)
	}
	facade.queries = Queries{
		ClassifyEvent: relayquery.NewClassifyEventQuery(relay),
	}
	if cfg.ledger != nil {
		facade.queries.ListDispatches = relayquery.NewListDispatchesQuery(cfg.ledger)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Relay() RelayService {
	if f == nil {
		return nil
	}
	return f.relay
}

func resolvePruner(relay RelayService) core.Pruner {
	if pruner, ok := relay.(core.Pruner); ok {
		return pruner
	}
	provider, ok := relay.(interface {
		Dependencies() core.RelayDependencies
	})
	if !ok {
		return nil
	}
	pruner, ok := provider.Dependencies().Deduplicator.(core.Pruner)
	if !ok {
		return nil
	}
	return pruner
}
