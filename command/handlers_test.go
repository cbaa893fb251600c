package command

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/sync"
)

type stubAccountMutator struct {
	upsertFn    func(ctx context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error)
	setActiveFn func(ctx context.Context, tenantID string, accountID string, active bool) error
}

func (s stubAccountMutator) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error) {
	if s.upsertFn == nil {
		return core.IntegrationAccount{}, nil
	}
	return s.upsertFn(ctx, in)
}

func (s stubAccountMutator) SetActive(ctx context.Context, tenantID string, accountID string, active bool) error {
	if s.setActiveFn == nil {
		return nil
	}
	return s.setActiveFn(ctx, tenantID, accountID, active)
}

type recordingInvalidator struct {
	calls []string
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID, providerID, externalID string) error {
	r.calls = append(r.calls, tenantID+"/"+providerID+"/"+externalID)
	return r.err
}

type stubTenantAdmin struct {
	createFn    func(ctx context.Context, name string, token string, active bool) (core.Tenant, error)
	setActiveFn func(ctx context.Context, tenantID string, active bool) error
}

func (s stubTenantAdmin) CreateTenant(ctx context.Context, name string, token string, active bool) (core.Tenant, error) {
	if s.createFn == nil {
		return core.Tenant{}, nil
	}
	return s.createFn(ctx, name, token, active)
}

func (s stubTenantAdmin) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	if s.setActiveFn == nil {
		return nil
	}
	return s.setActiveFn(ctx, tenantID, active)
}

type stubSyncer struct {
	syncFn func(ctx context.Context, req sync.Request) (sync.Result, error)
}

func (s stubSyncer) Sync(ctx context.Context, req sync.Request) (sync.Result, error) {
	if s.syncFn == nil {
		return sync.Result{}, nil
	}
	return s.syncFn(ctx, req)
}

type stubReplayer struct {
	replayFn func(ctx context.Context, tenantID, providerID, externalID string) (core.IngestOutcome, error)
}

func (s stubReplayer) Replay(ctx context.Context, tenantID, providerID, externalID string) (core.IngestOutcome, error) {
	if s.replayFn == nil {
		return core.IngestOutcomeProcessed, nil
	}
	return s.replayFn(ctx, tenantID, providerID, externalID)
}

func TestUpsertAccountCommand_StoresResultAndInvalidatesCache(t *testing.T) {
	expected := core.IntegrationAccount{
		ID:         "acct-1",
		TenantID:   "tenant-a",
		ProviderID: "metalead",
		ExternalID: "page-1",
	}
	invalidator := &recordingInvalidator{}
	cmd := NewUpsertAccountCommand(stubAccountMutator{
		upsertFn: func(_ context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error) {
			if in.ExternalID != "page-1" {
				t.Fatalf("unexpected upsert input: %+v", in)
			}
			return expected, nil
		},
	}, invalidator)

	collector := gocmd.NewResult[core.IntegrationAccount]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, UpsertAccountMessage{Input: core.UpsertAccountInput{
		TenantID:   "tenant-a",
		ProviderID: "metalead",
		ExternalID: "page-1",
		IsActive:   true,
	}})
	if err != nil {
		t.Fatalf("execute upsert account: %v", err)
	}
	stored, ok := collector.Load()
	if !ok || stored.ID != "acct-1" {
		t.Fatalf("expected stored account result, got ok=%v %+v", ok, stored)
	}
	if len(invalidator.calls) != 1 || invalidator.calls[0] != "tenant-a/metalead/page-1" {
		t.Fatalf("expected cache invalidation for the upserted key, got %v", invalidator.calls)
	}
}

func TestSetAccountActiveCommand_InvalidatesWhenIdentityKnown(t *testing.T) {
	var gotActive *bool
	invalidator := &recordingInvalidator{}
	cmd := NewSetAccountActiveCommand(stubAccountMutator{
		setActiveFn: func(_ context.Context, tenantID, accountID string, active bool) error {
			if tenantID != "tenant-a" || accountID != "acct-1" {
				t.Fatalf("unexpected set active args: %q %q", tenantID, accountID)
			}
			gotActive = &active
			return nil
		},
	}, invalidator)

	err := cmd.Execute(context.Background(), SetAccountActiveMessage{
		TenantID:   "tenant-a",
		AccountID:  "acct-1",
		ProviderID: "metalead",
		ExternalID: "page-1",
		Active:     false,
	})
	if err != nil {
		t.Fatalf("execute set account active: %v", err)
	}
	if gotActive == nil || *gotActive {
		t.Fatalf("expected account to be paused")
	}
	if len(invalidator.calls) != 1 {
		t.Fatalf("expected one invalidation, got %v", invalidator.calls)
	}
}

func TestSetAccountActiveCommand_SkipsInvalidationWithoutIdentity(t *testing.T) {
	invalidator := &recordingInvalidator{}
	cmd := NewSetAccountActiveCommand(stubAccountMutator{}, invalidator)

	err := cmd.Execute(context.Background(), SetAccountActiveMessage{
		TenantID:  "tenant-a",
		AccountID: "acct-1",
		Active:    true,
	})
	if err != nil {
		t.Fatalf("execute set account active: %v", err)
	}
	if len(invalidator.calls) != 0 {
		t.Fatalf("expected no invalidation without provider identity, got %v", invalidator.calls)
	}
}

func TestCreateTenantCommand_StoresResult(t *testing.T) {
	cmd := NewCreateTenantCommand(stubTenantAdmin{
		createFn: func(_ context.Context, name, token string, active bool) (core.Tenant, error) {
			if name != "Acme Realty" || token != "tok-acme" || !active {
				t.Fatalf("unexpected create tenant args: %q %q %v", name, token, active)
			}
			return core.Tenant{ID: "tenant-a", Name: name, Active: active}, nil
		},
	})

	collector := gocmd.NewResult[core.Tenant]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, CreateTenantMessage{
		Name:         "Acme Realty",
		WebhookToken: "tok-acme",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("execute create tenant: %v", err)
	}
	tenant, ok := collector.Load()
	if !ok || tenant.ID != "tenant-a" {
		t.Fatalf("expected stored tenant, got ok=%v %+v", ok, tenant)
	}
}

func TestSyncLeadsCommand_DelegatesWindow(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)

	cmd := NewSyncLeadsCommand(stubSyncer{
		syncFn: func(_ context.Context, req sync.Request) (sync.Result, error) {
			if req.TenantID != "tenant-a" || req.PageID != "page-1" {
				t.Fatalf("unexpected sync request: %+v", req)
			}
			if !req.StartDate.Equal(start) || !req.EndDate.Equal(end) {
				t.Fatalf("unexpected sync window: %+v", req)
			}
			return sync.Result{LeadsSynced: 3, FormsRefreshed: 1}, nil
		},
	})

	collector := gocmd.NewResult[sync.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, SyncLeadsMessage{
		TenantID:  "tenant-a",
		PageID:    "page-1",
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		t.Fatalf("execute sync leads: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.LeadsSynced != 3 {
		t.Fatalf("expected sync result, got ok=%v %+v", ok, result)
	}
}

func TestReplayRawLeadCommand_StoresOutcome(t *testing.T) {
	cmd := NewReplayRawLeadCommand(stubReplayer{
		replayFn: func(_ context.Context, tenantID, providerID, externalID string) (core.IngestOutcome, error) {
			if tenantID != "tenant-a" || providerID != "metalead" || externalID != "987" {
				t.Fatalf("unexpected replay args: %q %q %q", tenantID, providerID, externalID)
			}
			return core.IngestOutcomeProcessed, nil
		},
	})

	collector := gocmd.NewResult[core.IngestOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, ReplayRawLeadMessage{
		TenantID:   "tenant-a",
		ProviderID: "metalead",
		ExternalID: "987",
	})
	if err != nil {
		t.Fatalf("execute replay: %v", err)
	}
	outcome, ok := collector.Load()
	if !ok || outcome != core.IngestOutcomeProcessed {
		t.Fatalf("expected processed outcome, got ok=%v %v", ok, outcome)
	}
}

type stubBatchProcessor struct {
	processFn func(ctx context.Context, tenantID string, body []byte) (core.IngestSummary, error)
}

func (s stubBatchProcessor) ProcessWebhookBody(ctx context.Context, tenantID string, body []byte) (core.IngestSummary, error) {
	if s.processFn == nil {
		return core.IngestSummary{}, nil
	}
	return s.processFn(ctx, tenantID, body)
}

func TestProcessLeadBatchCommand_RoutesByProvider(t *testing.T) {
	body := []byte(`{"object":"page","entry":[]}`)
	cmd := NewProcessLeadBatchCommand(map[string]LeadBatchProcessor{
		"metalead": stubBatchProcessor{
			processFn: func(_ context.Context, tenantID string, got []byte) (core.IngestSummary, error) {
				if tenantID != "tenant-a" || string(got) != string(body) {
					t.Fatalf("unexpected batch args: %q %q", tenantID, got)
				}
				return core.IngestSummary{Received: 2, Processed: 2}, nil
			},
		},
	})

	collector := gocmd.NewResult[core.IngestSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, ProcessLeadBatchMessage{
		TenantID:   "tenant-a",
		ProviderID: "metalead",
		DeliveryID: "delivery-1",
		Body:       body,
	})
	if err != nil {
		t.Fatalf("execute process batch: %v", err)
	}
	summary, ok := collector.Load()
	if !ok || summary.Processed != 2 {
		t.Fatalf("expected stored summary, got ok=%v %+v", ok, summary)
	}

	if err := cmd.Execute(context.Background(), ProcessLeadBatchMessage{
		TenantID:   "tenant-a",
		ProviderID: "estatexml",
		Body:       body,
	}); err == nil {
		t.Fatalf("expected unroutable provider to error")
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	boom := errors.New("store down")
	cmd := NewUpsertAccountCommand(stubAccountMutator{
		upsertFn: func(context.Context, core.UpsertAccountInput) (core.IntegrationAccount, error) {
			return core.IntegrationAccount{}, boom
		},
	}, nil)
	if err := cmd.Execute(context.Background(), UpsertAccountMessage{}); !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestMessageValidation(t *testing.T) {
	if err := (UpsertAccountMessage{}).Validate(); err == nil {
		t.Fatal("expected empty upsert message to fail validation")
	}
	if err := (SetAccountActiveMessage{TenantID: "t"}).Validate(); err == nil {
		t.Fatal("expected missing account id to fail validation")
	}
	if err := (CreateTenantMessage{Name: "Acme"}).Validate(); err == nil {
		t.Fatal("expected missing webhook token to fail validation")
	}
	if err := (SyncLeadsMessage{
		TenantID:  "t",
		StartDate: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}).Validate(); err == nil {
		t.Fatal("expected inverted sync window to fail validation")
	}
	if err := (ReplayRawLeadMessage{TenantID: "t", ProviderID: "metalead"}).Validate(); err == nil {
		t.Fatal("expected missing external id to fail validation")
	}
	if err := (SyncLeadsMessage{TenantID: "t"}).Validate(); err != nil {
		t.Fatalf("expected open-ended sync window to validate, got %v", err)
	}
	if err := (ProcessLeadBatchMessage{TenantID: "t", ProviderID: "metalead"}).Validate(); err == nil {
		t.Fatal("expected empty batch body to fail validation")
	}
}
