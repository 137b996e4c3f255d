package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-hookrelay/core"
)

const (
	ProviderGitea  = "gitea"
	ProviderGitHub = "github"
	ProviderGogs   = "gogs"
)

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("webhooks: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id not found")
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id not found")
	}
}

// NewGiteaWebhookTemplate verifies X-Gitea-Signature, a hex HMAC-SHA256 of
// the raw body. An empty secret disables verification.
func NewGiteaWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: ProviderGitea,
		Verifier:   hmacVerifier("X-Gitea-Signature", "", secret),
		Extractor:  HeaderDeliveryIDExtractor("X-Gitea-Delivery"),
	}
}

func NewGitHubWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: ProviderGitHub,
		Verifier:   hmacVerifier("X-Hub-Signature-256", "sha256=", secret),
		Extractor:  HeaderDeliveryIDExtractor("X-GitHub-Delivery"),
	}
}

func NewGogsWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: ProviderGogs,
		Verifier:   hmacVerifier("X-Gogs-Signature", "", secret),
		Extractor:  HeaderDeliveryIDExtractor("X-Gogs-Delivery"),
	}
}

var templateFactories = map[string]func(secret string) ProviderWebhookTemplate{
	ProviderGitea:  NewGiteaWebhookTemplate,
	ProviderGitHub: NewGitHubWebhookTemplate,
	ProviderGogs:   NewGogsWebhookTemplate,
}

// TemplateFor returns the template registered for providerID.
func TemplateFor(providerID string, secret string) (ProviderWebhookTemplate, error) {
	factory, ok := templateFactories[strings.TrimSpace(strings.ToLower(providerID))]
	if !ok {
		return ProviderWebhookTemplate{}, fmt.Errorf("webhooks: unsupported provider %q", providerID)
	}
	return factory(secret), nil
}

func SupportedProviders() []string {
	out := make([]string, 0, len(templateFactories))
	for id := range templateFactories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func hmacVerifier(header string, prefix string, secret string) Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return HeaderHMACVerifier{
		Header:   header,
		Prefix:   prefix,
		Secret:   secret,
		Encoding: "hex",
	}
}
