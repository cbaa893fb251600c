package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leads/core"
)

const (
	TypeUpsertAccount    = "leads.command.account.upsert"
	TypeSetAccountActive = "leads.command.account.set_active"
	TypeCreateTenant     = "leads.command.tenant.create"
	TypeSetTenantActive  = "leads.command.tenant.set_active"
	TypeSyncLeads        = "leads.command.sync.run"
	TypeReplayRawLead    = "leads.command.raw_lead.replay"
	TypeProcessLeadBatch = "leads.command.batch.process"
)

type UpsertAccountMessage struct {
	Input core.UpsertAccountInput
}

func (UpsertAccountMessage) Type() string { return TypeUpsertAccount }

func (m UpsertAccountMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Input.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Input.ExternalID) == "" {
		return fmt.Errorf("command: external id is required")
	}
	return nil
}

// SetAccountActiveMessage carries the provider identity alongside the account
// id so the cached registry lookup can be invalidated in the same operation.
type SetAccountActiveMessage struct {
	TenantID   string
	AccountID  string
	ProviderID string
	ExternalID string
	Active     bool
}

func (SetAccountActiveMessage) Type() string { return TypeSetAccountActive }

func (m SetAccountActiveMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type CreateTenantMessage struct {
	Name         string
	WebhookToken string
	Active       bool
}

func (CreateTenantMessage) Type() string { return TypeCreateTenant }

func (m CreateTenantMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("command: tenant name is required")
	}
	if strings.TrimSpace(m.WebhookToken) == "" {
		return fmt.Errorf("command: tenant webhook token is required")
	}
	return nil
}

type SetTenantActiveMessage struct {
	TenantID string
	Active   bool
}

func (SetTenantActiveMessage) Type() string { return TypeSetTenantActive }

func (m SetTenantActiveMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	return nil
}

type SyncLeadsMessage struct {
	TenantID  string
	PageID    string
	StartDate time.Time
	EndDate   time.Time
}

func (SyncLeadsMessage) Type() string { return TypeSyncLeads }

func (m SyncLeadsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if !m.StartDate.IsZero() && !m.EndDate.IsZero() && m.EndDate.Before(m.StartDate) {
		return fmt.Errorf("command: sync window end precedes start")
	}
	return nil
}

type ReplayRawLeadMessage struct {
	TenantID   string
	ProviderID string
	ExternalID string
}

func (ReplayRawLeadMessage) Type() string { return TypeReplayRawLead }

func (m ReplayRawLeadMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("command: external id is required")
	}
	return nil
}

// ProcessLeadBatchMessage is the queue-side unit of work for an acknowledged
// webhook delivery: the raw body plus the identity the inbound surface already
// established. DeliveryID is informational here; dedupe happened at claim
// time.
type ProcessLeadBatchMessage struct {
	TenantID   string
	ProviderID string
	DeliveryID string
	Body       []byte
}

func (ProcessLeadBatchMessage) Type() string { return TypeProcessLeadBatch }

func (m ProcessLeadBatchMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if len(m.Body) == 0 {
		return fmt.Errorf("command: batch body is required")
	}
	return nil
}
