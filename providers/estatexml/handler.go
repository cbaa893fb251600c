package estatexml

import (
	"context"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/fanout"
	"github.com/goliatone/go-leads/ingest"
)

const SurfaceWebhook = "webhook"

// BatchRouter is the fan-out surface, satisfied by fanout.Router.
type BatchRouter interface {
	Route(ctx context.Context, providerID string, items []ingest.Item) (core.IngestSummary, error)
}

// WebhookHandler is the synchronous push surface. Unlike the JSON provider
// there is no ack-then-detach: the caller gets the real processing summary in
// the response body.
type WebhookHandler struct {
	router BatchRouter
	logger core.Logger
	Now    func() time.Time
}

func NewWebhookHandler(router BatchRouter) (*WebhookHandler, error) {
	if router == nil {
		return nil, fmt.Errorf("estatexml: batch router is required")
	}
	_, logger := glog.Resolve("leads.estatexml", nil, nil)
	return &WebhookHandler{
		router: router,
		logger: logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (h *WebhookHandler) Surface() string {
	return SurfaceWebhook
}

func (h *WebhookHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.router == nil {
		return core.InboundResult{}, fmt.Errorf("estatexml: webhook handler is not configured")
	}

	items, err := ParseBatch(req.Body)
	if err != nil {
		return core.InboundResult{}, err
	}

	summary, err := h.router.Route(ctx, ProviderID, items)
	if err != nil {
		return core.InboundResult{}, err
	}

	if h.logger != nil {
		h.logger.WithContext(ctx).Info("estatexml batch processed",
			"received", summary.Received,
			"processed", summary.Processed,
			"deduped", summary.Deduped,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		)
	}

	// Response contract: JSON summary {success, leadsProcessed, message,
	// timestamp}. The raw counts ride along for operators.
	metadata := summary.Metadata()
	metadata["success"] = true
	metadata["leadsProcessed"] = summary.Processed
	metadata["message"] = fmt.Sprintf("processed %d of %d leads", summary.Processed, len(items))
	metadata["timestamp"] = h.now().Format(time.RFC3339)

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

func (h *WebhookHandler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.InboundHandler = (*WebhookHandler)(nil)
var _ BatchRouter = (*fanout.Router)(nil)
