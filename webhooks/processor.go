package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookrelay/core"
)

const SurfaceWebhook = "webhook"

const (
	MessageProcessed        = "Webhook received and processed"
	MessageDuplicate        = "Duplicate webhook ignored"
	MessageEmptyPayload     = "Invalid payload: Request body is empty."
	MessageMissingIdentity  = "Invalid webhook payload: Missing required fields."
	MessageMalformedPayload = "Invalid payload: Request body is not valid JSON."
	MessageUnauthorized     = "Invalid webhook signature"
	MessageFailed           = "Error processing webhook"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

// Submitter is the relay entry point, satisfied by *core.Relay.
type Submitter interface {
	Submit(ctx context.Context, payload core.Payload) (core.Result, error)
}

// Processor handles one provider's webhook surface. Verifier is optional;
// a nil verifier accepts unsigned deliveries.
type Processor struct {
	ProviderID string
	Verifier   Verifier
	Relay      Submitter
	ExtractID  DeliveryIDExtractor
}

func NewProcessor(providerID string, verifier Verifier, relay Submitter) *Processor {
	return &Processor{
		ProviderID: strings.TrimSpace(strings.ToLower(providerID)),
		Verifier:   verifier,
		Relay:      relay,
		ExtractID:  DefaultDeliveryIDExtractor,
	}
}

// NewTemplateProcessor builds a processor from a provider template.
func NewTemplateProcessor(template ProviderWebhookTemplate, relay Submitter) *Processor {
	processor := NewProcessor(template.ProviderID, template.Verifier, relay)
	if template.Extractor != nil {
		processor.ExtractID = ChainDeliveryIDExtractors(template.Extractor, DefaultDeliveryIDExtractor)
	}
	return processor
}

func (*Processor) Surface() string {
	return SurfaceWebhook
}

func (p *Processor) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	return p.Process(ctx, req)
}

// Process always returns a result with a status code and body when it gets
// as far as the relay. The error carries the rich cause for logging.
func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Relay == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires a relay")
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = p.ProviderID
	}
	req.ProviderID = providerID
	metadata := map[string]any{"provider_id": providerID}
	if deliveryID, err := p.deliveryID(req); err == nil {
		metadata["delivery_id"] = deliveryID
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			metadata["rejected"] = true
			return reply(false, http.StatusUnauthorized, MessageUnauthorized, metadata),
				goerrors.Wrap(err, goerrors.CategoryAuth, "webhooks: signature verification failed").
					WithCode(http.StatusUnauthorized).
					WithTextCode(core.RelayErrorBadInput).
					WithMetadata(metadata)
		}
	}

	payload, err := DecodePayload(req.Body)
	if err != nil {
		message := MessageMalformedPayload
		if core.HasTextCode(err, core.RelayErrorEmptyPayload) {
			message = MessageEmptyPayload
		}
		return reply(false, http.StatusBadRequest, message, metadata), err
	}

	result, err := p.Relay.Submit(ctx, payload)
	metadata["outcome"] = string(result.Outcome)
	if result.Kind != "" {
		metadata["event_kind"] = string(result.Kind)
	}
	if result.Fingerprint != "" {
		metadata["fingerprint"] = result.Fingerprint.String()
	}

	switch result.Outcome {
	case core.OutcomeDispatched:
		metadata["destinations"] = result.Destinations.Strings()
		return reply(true, http.StatusOK, MessageProcessed, metadata), nil
	case core.OutcomeSuppressed:
		metadata["deduped"] = true
		return reply(true, http.StatusOK, MessageDuplicate, metadata), nil
	case core.OutcomeRejected:
		if core.HasTextCode(err, core.RelayErrorEmptyPayload) {
			return reply(false, http.StatusBadRequest, MessageEmptyPayload, metadata), err
		}
		return reply(false, http.StatusBadRequest, MessageMissingIdentity, metadata), err
	default:
		if err == nil {
			err = core.ErrProcessingFailure(nil, "submit")
		}
		return reply(false, http.StatusInternalServerError, MessageFailed, metadata), err
	}
}

// DecodePayload parses a webhook body into a payload tree. Numbers keep their
// literal form. A blank body or a JSON null is an empty payload; anything
// other than a JSON object is malformed.
func DecodePayload(body []byte) (core.Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, core.ErrEmptyPayload()
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, malformed(err)
	}
	if decoder.More() {
		return nil, malformed(errors.New("trailing data after json value"))
	}
	switch typed := raw.(type) {
	case nil:
		return nil, core.ErrEmptyPayload()
	case map[string]any:
		if len(typed) == 0 {
			return nil, core.ErrEmptyPayload()
		}
		return core.Payload(typed), nil
	default:
		return nil, malformed(fmt.Errorf("expected json object, got %T", raw))
	}
}

func malformed(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, "webhooks: malformed payload").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.RelayErrorBadInput)
}

func (p *Processor) deliveryID(req core.InboundRequest) (string, error) {
	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	return extractor(req)
}

func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	for _, key := range []string{"x-gitea-delivery", "x-github-delivery", "x-gogs-delivery", "x-delivery-id"} {
		if value := headerValue(req.Headers, key); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("webhooks: delivery id not found")
}

func reply(accepted bool, status int, body string, metadata map[string]any) core.InboundResult {
	return core.InboundResult{
		Accepted:   accepted,
		StatusCode: status,
		Body:       body,
		Metadata:   metadata,
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.InboundHandler = (*Processor)(nil)
