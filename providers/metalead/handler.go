package metalead

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/dispatch"
	"github.com/goliatone/go-leads/webhooks"
)

const (
	SurfaceWebhook      = "webhook"
	SurfaceVerification = "verification"
)

// WebhookHandler is the POST delivery surface. It acknowledges as soon as the
// envelope is structurally valid and the tenant is resolved; everything after
// that runs behind the dispatch boundary where failures are recorded on raw
// leads instead of the response.
type WebhookHandler struct {
	service  *Service
	tenants  core.TenantRegistry
	detacher dispatch.Detacher
	logger   core.Logger
}

func NewWebhookHandler(service *Service, tenants core.TenantRegistry, detacher dispatch.Detacher) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("metalead: service is required")
	}
	if tenants == nil {
		return nil, fmt.Errorf("metalead: tenant registry is required")
	}
	if detacher == nil {
		detacher = dispatch.New()
	}
	_, logger := glog.Resolve("leads.metalead", nil, nil)
	return &WebhookHandler{
		service:  service,
		tenants:  tenants,
		detacher: detacher,
		logger:   logger,
	}, nil
}

func (h *WebhookHandler) Surface() string {
	return SurfaceWebhook
}

func (h *WebhookHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.service == nil {
		return core.InboundResult{}, fmt.Errorf("metalead: webhook handler is not configured")
	}

	events, err := ParseLeadEvents(req.Body)
	if err != nil {
		return core.InboundResult{}, err
	}

	tenant, err := h.resolveTenant(ctx, req)
	if err != nil {
		return core.InboundResult{}, err
	}

	if len(events) > 0 {
		tenantID := tenant.ID
		batch := events
		h.detacher.Detach(ctx, "metalead.webhook", func(runCtx context.Context) error {
			summary, processErr := h.service.ProcessBatch(runCtx, tenantID, batch)
			if processErr != nil {
				return processErr
			}
			if h.logger != nil {
				h.logger.WithContext(runCtx).Info("metalead batch processed",
					"tenant_id", tenantID,
					"received", summary.Received,
					"processed", summary.Processed,
					"deduped", summary.Deduped,
					"skipped", summary.Skipped,
					"failed", summary.Failed,
				)
			}
			return nil
		})
	}

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"received": len(events),
		},
	}, nil
}

func (h *WebhookHandler) resolveTenant(ctx context.Context, req core.InboundRequest) (core.Tenant, error) {
	token := metadataString(req.Metadata, "tenant_token")
	if token == "" {
		token = strings.TrimSpace(headerValue(req.Headers, "X-Tenant-Token"))
	}
	if token == "" {
		return core.Tenant{}, goerrors.New(
			"metalead: tenant token is required",
			goerrors.CategoryAuth,
		).WithTextCode(core.LeadsErrorUnauthorized)
	}
	tenant, err := h.tenants.Resolve(ctx, token)
	if err != nil {
		return core.Tenant{}, goerrors.Wrap(err, goerrors.CategoryAuth, "metalead: resolve tenant token").
			WithTextCode(core.LeadsErrorUnauthorized)
	}
	return tenant, nil
}

// VerificationHandler is the GET subscription handshake. A separate surface
// from delivery on purpose: the challenge exchange is token-gated, never
// HMAC-gated.
type VerificationHandler struct {
	gate webhooks.ChallengeGate
}

func NewVerificationHandler(verifyToken string) *VerificationHandler {
	return &VerificationHandler{
		gate: webhooks.ChallengeGate{Token: strings.TrimSpace(verifyToken)},
	}
}

func (h *VerificationHandler) Surface() string {
	return SurfaceVerification
}

func (h *VerificationHandler) Handle(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil {
		return core.InboundResult{}, fmt.Errorf("metalead: verification handler is not configured")
	}
	challenge, err := h.gate.Echo(
		metadataString(req.Metadata, "hub.mode"),
		metadataString(req.Metadata, "hub.verify_token"),
		metadataString(req.Metadata, "hub.challenge"),
	)
	if err != nil {
		return core.InboundResult{}, goerrors.Wrap(err, goerrors.CategoryAuthz, "metalead: subscription verification rejected").
			WithTextCode(core.LeadsErrorUnauthorized)
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"challenge": challenge,
		},
	}, nil
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return value
		}
	}
	return ""
}

var _ core.InboundHandler = (*WebhookHandler)(nil)
var _ core.InboundHandler = (*VerificationHandler)(nil)
