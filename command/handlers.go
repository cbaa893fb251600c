package command

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/sync"
)

// AccountMutator is the slice of core.AccountStore the admin commands need.
type AccountMutator interface {
	Upsert(ctx context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error)
	SetActive(ctx context.Context, tenantID string, accountID string, active bool) error
}

// AccountCacheInvalidator evicts a cached registry lookup after a mutation so
// the eligibility gate sees the change before the cache TTL expires.
type AccountCacheInvalidator interface {
	Invalidate(ctx context.Context, tenantID string, providerID string, externalID string) error
}

type TenantAdmin interface {
	CreateTenant(ctx context.Context, name string, webhookToken string, active bool) (core.Tenant, error)
	SetTenantActive(ctx context.Context, tenantID string, active bool) error
}

type LeadSyncer interface {
	Sync(ctx context.Context, req sync.Request) (sync.Result, error)
}

type RawLeadReplayer interface {
	Replay(ctx context.Context, tenantID string, providerID string, externalID string) (core.IngestOutcome, error)
}

// LeadBatchProcessor runs a raw webhook body through parse, normalize, and
// upsert for one tenant. Provider services implement it.
type LeadBatchProcessor interface {
	ProcessWebhookBody(ctx context.Context, tenantID string, body []byte) (core.IngestSummary, error)
}

type UpsertAccountCommand struct {
	accounts    AccountMutator
	invalidator AccountCacheInvalidator
}

func NewUpsertAccountCommand(accounts AccountMutator, invalidator AccountCacheInvalidator) *UpsertAccountCommand {
	return &UpsertAccountCommand{
		accounts:    accounts,
		invalidator: invalidator,
	}
}

func (c *UpsertAccountCommand) Execute(ctx context.Context, msg UpsertAccountMessage) error {
	if c == nil || c.accounts == nil {
		return commandDependencyError("command: account store is required")
	}
	account, err := c.accounts.Upsert(ctx, msg.Input)
	if err != nil {
		return err
	}
	if c.invalidator != nil {
		if err := c.invalidator.Invalidate(ctx, account.TenantID, account.ProviderID, account.ExternalID); err != nil {
			return err
		}
	}
	storeResult(ctx, account)
	return nil
}

type SetAccountActiveCommand struct {
	accounts    AccountMutator
	invalidator AccountCacheInvalidator
}

func NewSetAccountActiveCommand(accounts AccountMutator, invalidator AccountCacheInvalidator) *SetAccountActiveCommand {
	return &SetAccountActiveCommand{
		accounts:    accounts,
		invalidator: invalidator,
	}
}

func (c *SetAccountActiveCommand) Execute(ctx context.Context, msg SetAccountActiveMessage) error {
	if c == nil || c.accounts == nil {
		return commandDependencyError("command: account store is required")
	}
	if err := c.accounts.SetActive(ctx, msg.TenantID, msg.AccountID, msg.Active); err != nil {
		return err
	}
	if c.invalidator != nil && msg.ProviderID != "" && msg.ExternalID != "" {
		if err := c.invalidator.Invalidate(ctx, msg.TenantID, msg.ProviderID, msg.ExternalID); err != nil {
			return err
		}
	}
	return nil
}

type CreateTenantCommand struct {
	tenants TenantAdmin
}

func NewCreateTenantCommand(tenants TenantAdmin) *CreateTenantCommand {
	return &CreateTenantCommand{tenants: tenants}
}

func (c *CreateTenantCommand) Execute(ctx context.Context, msg CreateTenantMessage) error {
	if c == nil || c.tenants == nil {
		return commandDependencyError("command: tenant admin is required")
	}
	tenant, err := c.tenants.CreateTenant(ctx, msg.Name, msg.WebhookToken, msg.Active)
	if err != nil {
		return err
	}
	storeResult(ctx, tenant)
	return nil
}

type SetTenantActiveCommand struct {
	tenants TenantAdmin
}

func NewSetTenantActiveCommand(tenants TenantAdmin) *SetTenantActiveCommand {
	return &SetTenantActiveCommand{tenants: tenants}
}

func (c *SetTenantActiveCommand) Execute(ctx context.Context, msg SetTenantActiveMessage) error {
	if c == nil || c.tenants == nil {
		return commandDependencyError("command: tenant admin is required")
	}
	return c.tenants.SetTenantActive(ctx, msg.TenantID, msg.Active)
}

type SyncLeadsCommand struct {
	syncer LeadSyncer
}

func NewSyncLeadsCommand(syncer LeadSyncer) *SyncLeadsCommand {
	return &SyncLeadsCommand{syncer: syncer}
}

func (c *SyncLeadsCommand) Execute(ctx context.Context, msg SyncLeadsMessage) error {
	if c == nil || c.syncer == nil {
		return commandDependencyError("command: sync service is required")
	}
	result, err := c.syncer.Sync(ctx, sync.Request{
		TenantID:  msg.TenantID,
		PageID:    msg.PageID,
		StartDate: msg.StartDate,
		EndDate:   msg.EndDate,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

type ReplayRawLeadCommand struct {
	replayer RawLeadReplayer
}

func NewReplayRawLeadCommand(replayer RawLeadReplayer) *ReplayRawLeadCommand {
	return &ReplayRawLeadCommand{replayer: replayer}
}

func (c *ReplayRawLeadCommand) Execute(ctx context.Context, msg ReplayRawLeadMessage) error {
	if c == nil || c.replayer == nil {
		return commandDependencyError("command: ingest engine is required")
	}
	outcome, err := c.replayer.Replay(ctx, msg.TenantID, msg.ProviderID, msg.ExternalID)
	if err != nil {
		return err
	}
	storeResult(ctx, outcome)
	return nil
}

// ProcessLeadBatchCommand executes acknowledged webhook batches on the worker
// side of the queue, routed by provider id.
type ProcessLeadBatchCommand struct {
	processors map[string]LeadBatchProcessor
}

func NewProcessLeadBatchCommand(processors map[string]LeadBatchProcessor) *ProcessLeadBatchCommand {
	registered := make(map[string]LeadBatchProcessor, len(processors))
	for providerID, processor := range processors {
		providerID = strings.TrimSpace(providerID)
		if providerID == "" || processor == nil {
			continue
		}
		registered[providerID] = processor
	}
	return &ProcessLeadBatchCommand{processors: registered}
}

func (c *ProcessLeadBatchCommand) Execute(ctx context.Context, msg ProcessLeadBatchMessage) error {
	if c == nil || len(c.processors) == 0 {
		return commandDependencyError("command: batch processors are required")
	}
	processor, ok := c.processors[strings.TrimSpace(msg.ProviderID)]
	if !ok {
		return commandDependencyError(fmt.Sprintf("command: no batch processor for provider %q", msg.ProviderID))
	}
	summary, err := processor.ProcessWebhookBody(ctx, msg.TenantID, msg.Body)
	if err != nil {
		return err
	}
	storeResult(ctx, summary)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
