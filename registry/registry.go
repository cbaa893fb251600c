// Package registry answers the one question the pipeline asks before
// normalizing anything: is this external account/page registered here, and is
// it currently accepting leads? Operators pause ingestion per account without
// deleting registration data, so found-but-inactive is a silent logged skip,
// never an error.
package registry

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
)

type TenantAccount struct {
	Tenant  core.Tenant
	Account core.IntegrationAccount
}

type Lookup interface {
	GetByExternalID(ctx context.Context, tenantID string, providerID string, externalID string) (core.IntegrationAccount, bool, error)
}

type Registry struct {
	accounts core.AccountStore
	tenants  core.TenantRegistry
	logger   core.Logger
	lookup   Lookup
}

type Option func(*Registry)

func WithLogger(logger core.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLookup swaps the account read path, e.g. for the cached lookup wrapper.
func WithLookup(lookup Lookup) Option {
	return func(r *Registry) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

func New(accounts core.AccountStore, tenants core.TenantRegistry, opts ...Option) (*Registry, error) {
	if accounts == nil {
		return nil, fmt.Errorf("registry: account store is required")
	}
	_, logger := glog.Resolve("leads.registry", nil, nil)
	reg := &Registry{
		accounts: accounts,
		tenants:  tenants,
		logger:   logger,
		lookup:   accounts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	return reg, nil
}

// EligibleAccount applies the gate rule: a lead is eligible for normalization
// only when the owning account is found AND active. The bool reports
// eligibility; an inactive or unregistered account is not an error.
func (r *Registry) EligibleAccount(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (core.IntegrationAccount, bool, error) {
	if r == nil || r.lookup == nil {
		return core.IntegrationAccount{}, false, fmt.Errorf("registry: account lookup is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	providerID = strings.TrimSpace(providerID)
	externalID = strings.TrimSpace(externalID)
	if tenantID == "" || providerID == "" || externalID == "" {
		return core.IntegrationAccount{}, false, fmt.Errorf("registry: tenant, provider, and external account id are required")
	}

	account, found, err := r.lookup.GetByExternalID(ctx, tenantID, providerID, externalID)
	if err != nil {
		return core.IntegrationAccount{}, false, err
	}
	if !found {
		r.logSkip(ctx, "account not registered", tenantID, providerID, externalID)
		return core.IntegrationAccount{}, false, nil
	}
	if !account.IsActive {
		r.logSkip(ctx, "account registered but inactive", tenantID, providerID, externalID)
		return core.IntegrationAccount{}, false, nil
	}
	return account, true, nil
}

// ListActiveTenantsWithAccount enumerates every tenant holding an active
// account for the provider. This is the fan-out provider's routing input: its
// webhook carries no tenant context, so each inbound batch is evaluated
// against the whole registry.
func (r *Registry) ListActiveTenantsWithAccount(
	ctx context.Context,
	providerID string,
) ([]TenantAccount, error) {
	if r == nil || r.accounts == nil {
		return nil, fmt.Errorf("registry: account store is not configured")
	}
	if r.tenants == nil {
		return nil, fmt.Errorf("registry: tenant registry is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, fmt.Errorf("registry: provider id is required")
	}

	tenants, err := r.tenants.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]TenantAccount, 0, len(tenants))
	for _, tenant := range tenants {
		if !tenant.Active {
			continue
		}
		accounts, err := r.accounts.ListActive(ctx, tenant.ID, providerID)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			continue
		}
		out = append(out, TenantAccount{
			Tenant:  tenant,
			Account: accounts[0],
		})
	}
	return out, nil
}

func (r *Registry) logSkip(ctx context.Context, reason string, tenantID, providerID, externalID string) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("lead skipped: "+reason,
		"tenant_id", tenantID,
		"provider_id", providerID,
		"external_account_id", externalID,
	)
}
