package sync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
)

const Surface = "sync"

// Handler exposes manual sync as an inbound surface. The request is scoped by
// the caller's tenant token; pageId and the window arrive as metadata.
type Handler struct {
	service *Service
	tenants core.TenantRegistry
}

func NewHandler(service *Service, tenants core.TenantRegistry) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("sync: service is required")
	}
	if tenants == nil {
		return nil, fmt.Errorf("sync: tenant registry is required")
	}
	return &Handler{service: service, tenants: tenants}, nil
}

func (h *Handler) Surface() string {
	return Surface
}

func (h *Handler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.service == nil {
		return core.InboundResult{}, fmt.Errorf("sync: handler is not configured")
	}

	token := metadataString(req.Metadata, "tenant_token")
	if token == "" {
		return core.InboundResult{}, goerrors.New(
			"sync: tenant token is required",
			goerrors.CategoryAuth,
		).WithTextCode(core.LeadsErrorUnauthorized)
	}
	tenant, err := h.tenants.Resolve(ctx, token)
	if err != nil {
		return core.InboundResult{}, goerrors.Wrap(err, goerrors.CategoryAuth, "sync: resolve tenant token").
			WithTextCode(core.LeadsErrorUnauthorized)
	}

	startDate, err := metadataTime(req.Metadata, "start_date")
	if err != nil {
		return core.InboundResult{}, err
	}
	endDate, err := metadataTime(req.Metadata, "end_date")
	if err != nil {
		return core.InboundResult{}, err
	}

	result, err := h.service.Sync(ctx, Request{
		TenantID:  tenant.ID,
		PageID:    metadataString(req.Metadata, "page_id"),
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return core.InboundResult{}, core.MapError(err)
	}

	metadata := result.Summary.Metadata()
	metadata["leadsSynced"] = result.LeadsSynced
	metadata["formsRefreshed"] = result.FormsRefreshed
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

func metadataTime(metadata map[string]any, key string) (time.Time, error) {
	value := metadataString(metadata, key)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, goerrors.New(
		fmt.Sprintf("sync: invalid %s %q", key, value),
		goerrors.CategoryBadInput,
	).WithTextCode(core.LeadsErrorBadInput)
}

var _ core.InboundHandler = (*Handler)(nil)
