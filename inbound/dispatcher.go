package inbound

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookrelay/core"
)

const SurfaceWebhook = "webhook"

// Dispatcher routes inbound requests to the handler registered for the
// request's provider.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]core.InboundHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]core.InboundHandler{}}
}

func (d *Dispatcher) Register(providerID string, handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	providerID = normalizeProvider(providerID)
	if providerID == "" {
		return inboundBadInput("inbound: provider id is required", nil)
	}
	surface := normalizeSurface(handler.Surface())
	if surface != SurfaceWebhook {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"provider_id": providerID, "surface": surface},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[providerID]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for provider %q", providerID),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.RelayErrorBadInput,
			map[string]any{"provider_id": providerID},
		)
	}
	d.handlers[providerID] = handler
	return nil
}

// Providers lists registered provider ids in order.
func (d *Dispatcher) Providers() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for id := range d.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dispatch returns the handler result untouched when the handler produced a
// status code, so outcome bodies survive alongside the error.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.ProviderID = normalizeProvider(req.ProviderID)
	req.Surface = normalizeSurface(req.Surface)
	if req.Surface == "" {
		req.Surface = SurfaceWebhook
	}
	if req.ProviderID == "" {
		return core.InboundResult{}, inboundBadInput("inbound: provider id is required", map[string]any{
			"surface": req.Surface,
		})
	}
	if req.Surface != SurfaceWebhook {
		return core.InboundResult{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", req.Surface),
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}

	handler := d.handlerFor(req.ProviderID)
	if handler == nil {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for provider %q", req.ProviderID),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.RelayErrorNotFound,
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}

	result, err := handler.Handle(ctx, req)
	if err != nil && result.StatusCode == 0 {
		return result, inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: handler execution failed",
			http.StatusInternalServerError,
			core.RelayErrorProcessingFailure,
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = req.ProviderID
	result.Metadata["surface"] = req.Surface
	return result, err
}

func (d *Dispatcher) handlerFor(providerID string) core.InboundHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeProvider(providerID)]
}

func normalizeProvider(providerID string) string {
	return strings.TrimSpace(strings.ToLower(providerID))
}

func normalizeSurface(surface string) string {
	return strings.TrimSpace(strings.ToLower(surface))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
