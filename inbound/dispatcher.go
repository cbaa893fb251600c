package inbound

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/webhooks"
)

const (
	SurfaceWebhook      = "webhook"
	SurfaceVerification = "verification"
	SurfaceSync         = "sync"
)

// Dispatcher is the transport-agnostic front door. Webhook deliveries pass
// the provider's signature gate and the delivery-level dedupe ledger before
// any handler runs; the verification handshake and operator sync surfaces
// bypass both on purpose (the handshake is token-gated inside its handler,
// sync is an authenticated admin path).
type Dispatcher struct {
	Store  core.IdempotencyClaimStore
	KeyTTL time.Duration

	mu        sync.RWMutex
	templates map[string]webhooks.ProviderWebhookTemplate
	handlers  map[string]core.InboundHandler
}

func NewDispatcher(store core.IdempotencyClaimStore) *Dispatcher {
	return &Dispatcher{
		Store:     store,
		KeyTTL:    10 * time.Minute,
		templates: map[string]webhooks.ProviderWebhookTemplate{},
		handlers:  map[string]core.InboundHandler{},
	}
}

// RegisterTemplate installs a provider's webhook verification template. One
// template per provider; the template's verifier gates only the webhook
// surface.
func (d *Dispatcher) RegisterTemplate(template webhooks.ProviderWebhookTemplate) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	providerID := normalizeToken(template.ProviderID)
	if providerID == "" {
		return inboundBadInput("inbound: template provider id is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.templates[providerID]; exists {
		return inboundError(
			fmt.Sprintf("inbound: template already registered for provider %q", providerID),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.LeadsErrorConflict,
			map[string]any{"provider_id": providerID},
		)
	}
	d.templates[providerID] = template
	return nil
}

// Register binds a handler to (provider, surface). Both providers expose a
// webhook surface, so the provider id is part of the routing key.
func (d *Dispatcher) Register(providerID string, handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	providerID = normalizeToken(providerID)
	if providerID == "" {
		return inboundBadInput("inbound: provider id is required", nil)
	}
	surface := normalizeToken(handler.Surface())
	if !isSupportedSurface(surface) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"provider_id": providerID, "surface": surface},
		)
	}
	key := routingKey(providerID, surface)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[key]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for %s/%s", providerID, surface),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.LeadsErrorConflict,
			map[string]any{"provider_id": providerID, "surface": surface},
		)
	}
	d.handlers[key] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.ProviderID = normalizeToken(req.ProviderID)
	req.Surface = normalizeToken(req.Surface)
	if req.ProviderID == "" {
		return core.InboundResult{}, inboundBadInput("inbound: provider id is required", map[string]any{
			"surface": req.Surface,
		})
	}
	if !isSupportedSurface(req.Surface) {
		return core.InboundResult{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", req.Surface),
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}

	claimID := ""
	if req.Surface == SurfaceWebhook {
		template, hasTemplate := d.templateFor(req.ProviderID)
		if hasTemplate && template.Verifier != nil {
			if err := template.Verifier.Verify(ctx, req); err != nil {
				return core.InboundResult{
						Accepted:   false,
						StatusCode: http.StatusUnauthorized,
						Metadata: map[string]any{
							"provider_id": req.ProviderID,
							"surface":     req.Surface,
							"rejected":    true,
						},
					}, inboundWrapError(
						err,
						goerrors.CategoryAuth,
						"inbound: request verification failed",
						http.StatusUnauthorized,
						core.LeadsErrorUnauthorized,
						map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
					)
			}
		}

		if d.Store != nil {
			key, err := d.deliveryKey(template, hasTemplate, req)
			if err != nil {
				return core.InboundResult{}, err
			}
			var accepted bool
			claimID, accepted, err = d.Store.Claim(ctx, routingKey(req.ProviderID, req.Surface)+":"+key, d.keyTTL())
			if err != nil {
				return core.InboundResult{}, inboundWrapError(
					err,
					goerrors.CategoryOperation,
					"inbound: idempotency claim failed",
					http.StatusInternalServerError,
					core.LeadsErrorOperationFailed,
					map[string]any{
						"provider_id": req.ProviderID,
						"surface":     req.Surface,
						"idempotency": key,
					},
				)
			}
			if !accepted {
				// Redelivery of an in-flight or completed delivery acks
				// without reprocessing.
				return core.InboundResult{
					Accepted:   true,
					StatusCode: http.StatusOK,
					Metadata: map[string]any{
						"provider_id": req.ProviderID,
						"surface":     req.Surface,
						"deduped":     true,
					},
				}, nil
			}
		}
	}

	handler := d.handlerFor(req.ProviderID, req.Surface)
	if handler == nil {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for %s/%s", req.ProviderID, req.Surface),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.LeadsErrorNotFound,
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}

	result, err := handler.Handle(ctx, req)
	if err != nil {
		handlerErr := core.MapError(err)
		if claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err, time.Time{}); failErr != nil {
				return core.InboundResult{}, errors.Join(
					handlerErr,
					inboundWrapError(
						failErr,
						goerrors.CategoryOperation,
						"inbound: mark idempotency claim failed",
						http.StatusInternalServerError,
						core.LeadsErrorInternal,
						map[string]any{"provider_id": req.ProviderID, "surface": req.Surface, "claim_id": claimID},
					),
				)
			}
		}
		return core.InboundResult{}, handlerErr
	}

	if claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: complete idempotency claim",
				http.StatusInternalServerError,
				core.LeadsErrorOperationFailed,
				map[string]any{"provider_id": req.ProviderID, "surface": req.Surface, "claim_id": claimID},
			)
		}
	}

	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = req.ProviderID
	result.Metadata["surface"] = req.Surface
	return result, nil
}

// deliveryKey resolves the delivery id for dedupe: template extractor first,
// then the generic metadata/header fallbacks, then a digest of the raw body.
// Providers that sign nothing and send no delivery header still get a claim
// key; identical bytes redelivered collapse onto the same claim.
func (d *Dispatcher) deliveryKey(
	template webhooks.ProviderWebhookTemplate,
	hasTemplate bool,
	req core.InboundRequest,
) (string, error) {
	if hasTemplate && template.Extractor != nil {
		if key, err := template.Extractor(req); err == nil && strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), nil
		}
	}
	if key, err := DefaultDeliveryKeyExtractor(req); err == nil {
		return key, nil
	}
	if len(req.Body) > 0 {
		digest := sha256.Sum256(req.Body)
		return "body:" + hex.EncodeToString(digest[:]), nil
	}
	return "", inboundBadInput("inbound: delivery id is required", map[string]any{
		"provider_id": req.ProviderID,
		"surface":     req.Surface,
	})
}

func DefaultDeliveryKeyExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["idempotency_key"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["delivery_id"]); value != "" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-idempotency-key"); value != "" {
			return value, nil
		}
	}
	return "", inboundBadInput("inbound: delivery id is required", map[string]any{
		"provider_id": req.ProviderID,
		"surface":     req.Surface,
	})
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

func (d *Dispatcher) templateFor(providerID string) (webhooks.ProviderWebhookTemplate, bool) {
	if d == nil {
		return webhooks.ProviderWebhookTemplate{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	template, found := d.templates[normalizeToken(providerID)]
	return template, found
}

func (d *Dispatcher) handlerFor(providerID, surface string) core.InboundHandler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[routingKey(normalizeToken(providerID), normalizeToken(surface))]
}

func routingKey(providerID, surface string) string {
	return providerID + ":" + surface
}

func normalizeToken(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func isSupportedSurface(surface string) bool {
	switch normalizeToken(surface) {
	case SurfaceWebhook, SurfaceVerification, SurfaceSync:
		return true
	default:
		return false
	}
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
