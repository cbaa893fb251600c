package registry

import (
	"context"
	"sort"
	"testing"

	"github.com/goliatone/go-leads/core"
)

type stubAccountStore struct {
	accounts map[string]core.IntegrationAccount
}

func accountKey(tenantID, providerID, externalID string) string {
	return tenantID + "|" + providerID + "|" + externalID
}

func newStubAccountStore(accounts ...core.IntegrationAccount) *stubAccountStore {
	store := &stubAccountStore{accounts: map[string]core.IntegrationAccount{}}
	for _, account := range accounts {
		store.accounts[accountKey(account.TenantID, account.ProviderID, account.ExternalID)] = account
	}
	return store
}

func (s *stubAccountStore) Upsert(_ context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error) {
	account := core.IntegrationAccount{
		TenantID:   in.TenantID,
		ProviderID: in.ProviderID,
		ExternalID: in.ExternalID,
		IsActive:   in.IsActive,
	}
	s.accounts[accountKey(in.TenantID, in.ProviderID, in.ExternalID)] = account
	return account, nil
}

func (s *stubAccountStore) GetByExternalID(_ context.Context, tenantID, providerID, externalID string) (core.IntegrationAccount, bool, error) {
	account, ok := s.accounts[accountKey(tenantID, providerID, externalID)]
	return account, ok, nil
}

func (s *stubAccountStore) ListActive(_ context.Context, tenantID, providerID string) ([]core.IntegrationAccount, error) {
	var out []core.IntegrationAccount
	for _, account := range s.accounts {
		if account.TenantID == tenantID && account.ProviderID == providerID && account.IsActive {
			out = append(out, account)
		}
	}
	return out, nil
}

func (s *stubAccountStore) SetActive(context.Context, string, string, bool) error {
	return nil
}

func (s *stubAccountStore) SaveForms(context.Context, string, string, []core.LeadForm) error {
	return nil
}

func (s *stubAccountStore) IncrementFormLeadCount(context.Context, string, string) error {
	return nil
}

type stubTenantRegistry struct {
	tenants []core.Tenant
}

func (s *stubTenantRegistry) Resolve(_ context.Context, token string) (core.Tenant, error) {
	return core.Tenant{}, core.ErrTenantNotFound
}

func (s *stubTenantRegistry) List(context.Context) ([]core.Tenant, error) {
	return append([]core.Tenant(nil), s.tenants...), nil
}

func TestEligibleAccountGateRule(t *testing.T) {
	accounts := newStubAccountStore(
		core.IntegrationAccount{TenantID: "tenant-a", ProviderID: "metalead", ExternalID: "page-1", IsActive: true},
		core.IntegrationAccount{TenantID: "tenant-a", ProviderID: "metalead", ExternalID: "page-2", IsActive: false},
	)
	reg, err := New(accounts, &stubTenantRegistry{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	account, eligible, err := reg.EligibleAccount(ctx, "tenant-a", "metalead", "page-1")
	if err != nil || !eligible {
		t.Fatalf("expected active account to be eligible, got eligible=%v err=%v", eligible, err)
	}
	if account.ExternalID != "page-1" {
		t.Fatalf("unexpected account %+v", account)
	}

	// Registered but paused: silent skip, never an error.
	_, eligible, err = reg.EligibleAccount(ctx, "tenant-a", "metalead", "page-2")
	if err != nil {
		t.Fatalf("inactive account must not error: %v", err)
	}
	if eligible {
		t.Fatalf("expected inactive account to be ineligible")
	}

	_, eligible, err = reg.EligibleAccount(ctx, "tenant-a", "metalead", "page-unknown")
	if err != nil || eligible {
		t.Fatalf("expected unregistered account skip, got eligible=%v err=%v", eligible, err)
	}

	if _, _, err := reg.EligibleAccount(ctx, "", "metalead", "page-1"); err == nil {
		t.Fatalf("expected blank tenant id to error")
	}
}

func TestListActiveTenantsWithAccountFanOutTargets(t *testing.T) {
	accounts := newStubAccountStore(
		core.IntegrationAccount{TenantID: "tenant-a", ProviderID: "estatexml", ExternalID: "feed-1", IsActive: true},
		core.IntegrationAccount{TenantID: "tenant-b", ProviderID: "estatexml", ExternalID: "feed-2", IsActive: true},
		core.IntegrationAccount{TenantID: "tenant-c", ProviderID: "estatexml", ExternalID: "feed-3", IsActive: false},
	)
	tenants := &stubTenantRegistry{tenants: []core.Tenant{
		{ID: "tenant-a", Active: true},
		{ID: "tenant-b", Active: true},
		{ID: "tenant-c", Active: true},
	}}
	reg, err := New(accounts, tenants)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	targets, err := reg.ListActiveTenantsWithAccount(context.Background(), "estatexml")
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 fan-out targets, got %d", len(targets))
	}
	ids := []string{targets[0].Tenant.ID, targets[1].Tenant.ID}
	sort.Strings(ids)
	if ids[0] != "tenant-a" || ids[1] != "tenant-b" {
		t.Fatalf("unexpected targets %v", ids)
	}
}

func TestListActiveTenantsWithAccountSkipsPausedTenant(t *testing.T) {
	accounts := newStubAccountStore(
		core.IntegrationAccount{TenantID: "tenant-a", ProviderID: "estatexml", ExternalID: "feed-1", IsActive: true},
	)
	tenants := &stubTenantRegistry{tenants: []core.Tenant{
		{ID: "tenant-a", Active: false},
	}}
	reg, err := New(accounts, tenants)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	targets, err := reg.ListActiveTenantsWithAccount(context.Background(), "estatexml")
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected paused tenant to be excluded, got %v", targets)
	}
}
