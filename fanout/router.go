// Package fanout routes inbound leads that carry no tenant context: every
// tenant holding an active account for the provider receives its own
// tenant-scoped copy. Dedup stays within each tenant, so one inbound lead can
// legitimately become N canonical records.
package fanout

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/ingest"
	"github.com/goliatone/go-leads/registry"
)

// TenantEnumerator lists the fan-out targets for a provider.
type TenantEnumerator interface {
	ListActiveTenantsWithAccount(ctx context.Context, providerID string) ([]registry.TenantAccount, error)
}

// Ingestor is the tenant-scoped ingest surface, satisfied by ingest.Engine.
type Ingestor interface {
	Ingest(ctx context.Context, tenantID string, item ingest.Item) (core.IngestOutcome, error)
}

// Router is an explicit stage so that tenant-aware routing later only changes
// this type, never the parser or the engine.
type Router struct {
	enumerator TenantEnumerator
	ingestor   Ingestor
	logger     core.Logger
}

type Option func(*Router)

func WithLogger(logger core.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(enumerator TenantEnumerator, ingestor Ingestor, opts ...Option) (*Router, error) {
	if enumerator == nil {
		return nil, fmt.Errorf("fanout: tenant enumerator is required")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("fanout: ingestor is required")
	}
	_, logger := glog.Resolve("leads.fanout", nil, nil)
	router := &Router{
		enumerator: enumerator,
		ingestor:   ingestor,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router, nil
}

// Route delivers every item to every subscribed tenant sequentially, in
// arrival order. Item failures are absorbed into the summary; the returned
// error covers only enumeration faults.
func (r *Router) Route(ctx context.Context, providerID string, items []ingest.Item) (core.IngestSummary, error) {
	summary := core.IngestSummary{}
	if r == nil || r.enumerator == nil || r.ingestor == nil {
		return summary, fmt.Errorf("fanout: router is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return summary, fmt.Errorf("fanout: provider id is required")
	}

	targets, err := r.enumerator.ListActiveTenantsWithAccount(ctx, providerID)
	if err != nil {
		return summary, fmt.Errorf("fanout: enumerate tenants: %w", err)
	}
	if len(targets) == 0 {
		for range items {
			summary.Observe(core.IngestOutcomeSkipped)
		}
		r.logNoTargets(ctx, providerID, len(items))
		return summary, nil
	}

	for _, item := range items {
		for _, target := range targets {
			outcome, err := r.ingestor.Ingest(ctx, target.Tenant.ID, item)
			if err != nil {
				r.logItemError(ctx, target.Tenant.ID, item, err)
				summary.Observe(core.IngestOutcomeFailed)
				continue
			}
			summary.Observe(outcome)
		}
	}
	return summary, nil
}

func (r *Router) logNoTargets(ctx context.Context, providerID string, itemCount int) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.WithContext(ctx).Info("fan-out has no subscribed tenants",
		"provider_id", providerID,
		"items", itemCount,
	)
}

func (r *Router) logItemError(ctx context.Context, tenantID string, item ingest.Item, err error) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.WithContext(ctx).Error("fan-out ingest failed",
		"tenant_id", tenantID,
		"provider_id", item.ProviderID,
		"external_lead_id", item.ExternalID,
		"error", err.Error(),
	)
}

var _ TenantEnumerator = (*registry.Registry)(nil)
var _ Ingestor = (*ingest.Engine)(nil)
