package leads_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	gocmdlib "github.com/goliatone/go-command"

	leads "github.com/goliatone/go-leads"
	"github.com/goliatone/go-leads/adapters/gocommand"
	"github.com/goliatone/go-leads/command"
	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/dispatch"
	"github.com/goliatone/go-leads/inbound"
)

func TestSetupAssemblesPipeline(t *testing.T) {
	stores := newMemoryStores()
	pipeline, err := leads.Setup(context.Background(), leads.Config{},
		leads.WithStoreProvider(stores),
		leads.WithDetacher(dispatch.SyncDetacher{}),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if pipeline.Config().ServiceName != "leads" {
		t.Fatalf("expected default service name, got %q", pipeline.Config().ServiceName)
	}
	if pipeline.Inbound() == nil || pipeline.Engine() == nil || pipeline.Sync() == nil {
		t.Fatalf("expected assembled pipeline stages")
	}
	commands := pipeline.Commands()
	if commands.UpsertAccount == nil || commands.SyncLeads == nil || commands.ReplayRawLead == nil || commands.ProcessLeadBatch == nil {
		t.Fatalf("expected command wrappers to be built")
	}
	// The memory store provider carries no SQL tenant store, so the tenant
	// admin commands stay unavailable.
	if commands.CreateTenant != nil || commands.SetTenantActive != nil {
		t.Fatalf("expected tenant admin commands to be absent without a SQL store")
	}
}

func TestPipelineRegistersCommandsOnBus(t *testing.T) {
	stores := newMemoryStores()
	pipeline, err := leads.Setup(context.Background(), leads.Config{},
		leads.WithStoreProvider(stores),
		leads.WithDetacher(dispatch.SyncDetacher{}),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(gocmdlib.NewRegistry())
	subscriptions, err := pipeline.RegisterCommands(adapter)
	if err != nil {
		t.Fatalf("register commands: %v", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()
	// Five commands: the memory provider carries no tenant admin pair.
	if len(subscriptions) != 5 {
		t.Fatalf("expected 5 bus subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	err = gocommand.Dispatch(context.Background(), command.UpsertAccountMessage{
		Input: core.UpsertAccountInput{
			TenantID:   "tenant-a",
			ProviderID: "metalead",
			ExternalID: "page-9",
			IsActive:   true,
		},
	})
	if err != nil {
		t.Fatalf("dispatch upsert account: %v", err)
	}
	account, found, err := stores.AccountStore().GetByExternalID(context.Background(), "tenant-a", "metalead", "page-9")
	if err != nil || !found {
		t.Fatalf("expected dispatched upsert to land, found=%v err=%v", found, err)
	}
	if !account.IsActive {
		t.Fatalf("expected active account, got %+v", account)
	}

	jobProvider, jobLogger := pipeline.JobLogging()
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logging bridges")
	}
}

func TestPipelineMetaLeadWebhookEndToEnd(t *testing.T) {
	const secret = "app-secret"
	stores := newMemoryStores()
	stores.tenants.add(core.Tenant{ID: "tenant-a", Name: "Acme Realty", Active: true}, "tok-a")
	stores.accounts.add(core.IntegrationAccount{
		ID:         "acct-1",
		TenantID:   "tenant-a",
		ProviderID: "metalead",
		ExternalID: "page-1",
		IsActive:   true,
	})

	pipeline, err := leads.Setup(context.Background(), leads.Config{
		MetaLead: core.MetaLeadConfig{
			AppSecret:   secret,
			VerifyToken: "verify-tok",
		},
	},
		leads.WithStoreProvider(stores),
		leads.WithDetacher(dispatch.SyncDetacher{}),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	body := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1738368000,
			"changes": [{
				"field": "leadgen",
				"value": {
					"leadgen_id": "987",
					"page_id": "page-1",
					"form_id": "form-1",
					"created_time": 1738368000,
					"field_data": [
						{"name": "full_name", "values": ["Asha Rao"]},
						{"name": "email", "values": ["asha@example.com"]}
					]
				}
			}]
		}]
	}`)

	request := core.InboundRequest{
		ProviderID: "metalead",
		Surface:    inbound.SurfaceWebhook,
		Headers: map[string]string{
			"X-Hub-Signature-256": signBody(secret, body),
			"X-Hub-Delivery-Id":   "delivery-1",
		},
		Body:     body,
		Metadata: map[string]any{"tenant_token": "tok-a"},
	}

	result, err := pipeline.Inbound().Dispatch(context.Background(), request)
	if err != nil {
		t.Fatalf("dispatch webhook: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected delivery accepted, got %+v", result)
	}

	lead, found := stores.leads.find("tenant-a", "metalead", "987")
	if !found {
		t.Fatalf("expected canonical lead after webhook processing")
	}
	if lead.Name != "Asha Rao" || lead.Email != "asha@example.com" {
		t.Fatalf("unexpected normalized lead: %+v", lead)
	}
	if lead.Status != core.LeadStatusNew || lead.Priority != core.LeadPriorityMedium {
		t.Fatalf("expected default status and priority, got %q %q", lead.Status, lead.Priority)
	}

	raw, found := stores.raws.find("tenant-a", "metalead", "987")
	if !found || raw.State != core.RawLeadStateProcessed {
		t.Fatalf("expected raw lead marked processed, got found=%v %+v", found, raw)
	}

	// Redelivery with the same delivery id acks without reprocessing.
	redelivery, err := pipeline.Inbound().Dispatch(context.Background(), request)
	if err != nil {
		t.Fatalf("dispatch redelivery: %v", err)
	}
	if !redelivery.Accepted || redelivery.Metadata["deduped"] != true {
		t.Fatalf("expected deduped redelivery, got %+v", redelivery)
	}
	if stores.leads.count() != 1 {
		t.Fatalf("expected one canonical lead after redelivery, got %d", stores.leads.count())
	}
}

func TestPipelineRejectsTamperedSignature(t *testing.T) {
	stores := newMemoryStores()
	pipeline, err := leads.Setup(context.Background(), leads.Config{
		MetaLead: core.MetaLeadConfig{AppSecret: "app-secret"},
	},
		leads.WithStoreProvider(stores),
		leads.WithDetacher(dispatch.SyncDetacher{}),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	body := []byte(`{"object":"page","entry":[{"id":"page-1"}]}`)
	signature := signBody("app-secret", body)
	tampered := append(append([]byte(nil), body...), ' ')

	result, err := pipeline.Inbound().Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "metalead",
		Surface:    inbound.SurfaceWebhook,
		Headers: map[string]string{
			"X-Hub-Signature-256": signature,
			"X-Hub-Delivery-Id":   "delivery-2",
		},
		Body: tampered,
	})
	if err == nil {
		t.Fatalf("expected tampered delivery to be rejected")
	}
	if result.Accepted {
		t.Fatalf("expected rejection result, got %+v", result)
	}
	if stores.leads.count() != 0 {
		t.Fatalf("expected no leads from rejected delivery")
	}
}

func TestPipelineVerificationHandshake(t *testing.T) {
	stores := newMemoryStores()
	pipeline, err := leads.Setup(context.Background(), leads.Config{
		MetaLead: core.MetaLeadConfig{VerifyToken: "verify-tok"},
	},
		leads.WithStoreProvider(stores),
		leads.WithDetacher(dispatch.SyncDetacher{}),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := pipeline.Inbound().Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "metalead",
		Surface:    inbound.SurfaceVerification,
		Metadata: map[string]any{
			"hub.mode":         "subscribe",
			"hub.verify_token": "verify-tok",
			"hub.challenge":    "challenge-123",
		},
	})
	if err != nil {
		t.Fatalf("dispatch verification: %v", err)
	}
	if !result.Accepted || result.Metadata["challenge"] != "challenge-123" {
		t.Fatalf("expected challenge echo, got %+v", result)
	}

	if _, err := pipeline.Inbound().Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "metalead",
		Surface:    inbound.SurfaceVerification,
		Metadata: map[string]any{
			"hub.mode":         "subscribe",
			"hub.verify_token": "wrong",
			"hub.challenge":    "challenge-123",
		},
	}); err == nil {
		t.Fatalf("expected mismatched verify token to be rejected")
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// In-memory store provider used to assemble the pipeline without a database.

type memoryStores struct {
	accounts *memoryAccountStore
	raws     *memoryRawLeadStore
	leads    *memoryLeadStore
	tenants  *memoryTenantRegistry
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		accounts: &memoryAccountStore{accounts: map[string]core.IntegrationAccount{}},
		raws:     &memoryRawLeadStore{raws: map[string]core.RawExternalLead{}},
		leads:    &memoryLeadStore{leads: map[string]core.CanonicalLead{}},
		tenants:  &memoryTenantRegistry{byToken: map[string]core.Tenant{}},
	}
}

func (s *memoryStores) AccountStore() core.AccountStore     { return s.accounts }
func (s *memoryStores) RawLeadStore() core.RawLeadStore     { return s.raws }
func (s *memoryStores) LeadStore() core.LeadStore           { return s.leads }
func (s *memoryStores) TenantRegistry() core.TenantRegistry { return s.tenants }

func storeKey(parts ...string) string {
	key := parts[0]
	for _, part := range parts[1:] {
		key += "|" + part
	}
	return key
}

type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]core.IntegrationAccount
}

func (s *memoryAccountStore) add(account core.IntegrationAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[storeKey(account.TenantID, account.ProviderID, account.ExternalID)] = account
}

func (s *memoryAccountStore) Upsert(_ context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error) {
	account := core.IntegrationAccount{
		ID:                storeKey(in.TenantID, in.ProviderID, in.ExternalID),
		TenantID:          in.TenantID,
		ProviderID:        in.ProviderID,
		ExternalID:        in.ExternalID,
		Name:              in.Name,
		AccessToken:       in.AccessToken,
		IsActive:          in.IsActive,
		WebhookSubscribed: in.WebhookSubscribed,
	}
	s.add(account)
	return account, nil
}

func (s *memoryAccountStore) GetByExternalID(_ context.Context, tenantID, providerID, externalID string) (core.IntegrationAccount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[storeKey(tenantID, providerID, externalID)]
	return account, ok, nil
}

func (s *memoryAccountStore) ListActive(_ context.Context, tenantID, providerID string) ([]core.IntegrationAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.IntegrationAccount
	for _, account := range s.accounts {
		if account.TenantID == tenantID && account.ProviderID == providerID && account.IsActive {
			out = append(out, account)
		}
	}
	return out, nil
}

func (s *memoryAccountStore) SetActive(_ context.Context, tenantID, accountID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, account := range s.accounts {
		if account.TenantID == tenantID && account.ID == accountID {
			account.IsActive = active
			s.accounts[key] = account
			return nil
		}
	}
	return core.ErrAccountNotFound
}

func (s *memoryAccountStore) SaveForms(_ context.Context, tenantID, accountID string, forms []core.LeadForm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, account := range s.accounts {
		if account.TenantID == tenantID && account.ID == accountID {
			account.Forms = append([]core.LeadForm(nil), forms...)
			s.accounts[key] = account
			return nil
		}
	}
	return core.ErrAccountNotFound
}

func (s *memoryAccountStore) IncrementFormLeadCount(context.Context, string, string) error {
	return nil
}

type memoryRawLeadStore struct {
	mu   sync.Mutex
	raws map[string]core.RawExternalLead
}

func (s *memoryRawLeadStore) find(tenantID, providerID, externalID string) (core.RawExternalLead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.raws[storeKey(tenantID, providerID, externalID)]
	return raw, ok
}

func (s *memoryRawLeadStore) Upsert(_ context.Context, tenantID string, raw core.RawExternalLead) (core.RawExternalLead, error) {
	if raw.State == "" {
		raw.State = core.RawLeadStateReceived
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raws[storeKey(tenantID, raw.ProviderID, raw.ExternalID)] = raw
	return raw, nil
}

func (s *memoryRawLeadStore) Get(_ context.Context, tenantID, providerID, externalID string) (core.RawExternalLead, bool, error) {
	raw, ok := s.find(tenantID, providerID, externalID)
	return raw, ok, nil
}

func (s *memoryRawLeadStore) MarkProcessed(_ context.Context, tenantID, providerID, externalID string) error {
	return s.transition(tenantID, providerID, externalID, core.RawLeadStateProcessed, "")
}

func (s *memoryRawLeadStore) MarkFailed(_ context.Context, tenantID, providerID, externalID, reason string) error {
	return s.transition(tenantID, providerID, externalID, core.RawLeadStateFailed, reason)
}

func (s *memoryRawLeadStore) transition(tenantID, providerID, externalID string, state core.RawLeadState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(tenantID, providerID, externalID)
	raw, ok := s.raws[key]
	if !ok {
		return fmt.Errorf("raw lead %s not found", key)
	}
	raw.State = state
	raw.Error = reason
	s.raws[key] = raw
	return nil
}

type memoryLeadStore struct {
	mu    sync.Mutex
	leads map[string]core.CanonicalLead
}

func (s *memoryLeadStore) find(tenantID, source, externalID string) (core.CanonicalLead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[storeKey(tenantID, source, externalID)]
	return lead, ok
}

func (s *memoryLeadStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

func (s *memoryLeadStore) InsertIfAbsent(_ context.Context, tenantID string, lead core.CanonicalLead) (core.CanonicalLead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(tenantID, lead.Source, lead.Meta.ExternalID)
	if existing, ok := s.leads[key]; ok {
		return existing, false, nil
	}
	if lead.ID == "" {
		lead.ID = fmt.Sprintf("lead-%d", len(s.leads)+1)
	}
	s.leads[key] = lead
	return lead, true, nil
}

func (s *memoryLeadStore) FindBySourceExternalID(_ context.Context, tenantID, source, externalID string) (core.CanonicalLead, bool, error) {
	lead, ok := s.find(tenantID, source, externalID)
	return lead, ok, nil
}

type memoryTenantRegistry struct {
	mu      sync.Mutex
	byToken map[string]core.Tenant
}

func (s *memoryTenantRegistry) add(tenant core.Tenant, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = tenant
}

func (s *memoryTenantRegistry) Resolve(_ context.Context, token string) (core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.byToken[token]
	if !ok || !tenant.Active {
		return core.Tenant{}, core.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *memoryTenantRegistry) List(_ context.Context) ([]core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Tenant
	for _, tenant := range s.byToken {
		out = append(out, tenant)
	}
	return out, nil
}
