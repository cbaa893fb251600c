package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-leads/core"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID           string     `bun:"id,pk"`
	Name         string     `bun:"name,notnull"`
	WebhookToken string     `bun:"webhook_token,notnull"`
	IsActive     bool       `bun:"is_active,notnull"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete"`
}

type integrationAccountRecord struct {
	bun.BaseModel `bun:"table:integration_accounts,alias:ia"`

	ID                string     `bun:"id,pk"`
	TenantID          string     `bun:"tenant_id,notnull"`
	ProviderID        string     `bun:"provider_id,notnull"`
	ExternalID        string     `bun:"external_id,notnull"`
	Name              string     `bun:"name,notnull"`
	AccessToken       string     `bun:"access_token,notnull"`
	IsActive          bool       `bun:"is_active,notnull"`
	WebhookSubscribed bool       `bun:"webhook_subscribed,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete"`
}

type leadFormRecord struct {
	bun.BaseModel `bun:"table:lead_forms,alias:lf"`

	ID         string    `bun:"id,pk"`
	TenantID   string    `bun:"tenant_id,notnull"`
	AccountID  string    `bun:"account_id,notnull"`
	ExternalID string    `bun:"external_id,notnull"`
	Name       string    `bun:"name,notnull"`
	Locale     string    `bun:"locale"`
	Status     string    `bun:"status"`
	LeadCount  int       `bun:"lead_count,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rawExternalLeadRecord struct {
	bun.BaseModel `bun:"table:raw_external_leads,alias:rel"`

	ID          string       `bun:"id,pk"`
	TenantID    string       `bun:"tenant_id,notnull"`
	ProviderID  string       `bun:"provider_id,notnull"`
	ExternalID  string       `bun:"external_id,notnull"`
	PageID      string       `bun:"page_id"`
	FormID      string       `bun:"form_id"`
	CreatedTime time.Time    `bun:"created_time,nullzero"`
	Fields      []core.Field `bun:"fields,type:jsonb,notnull"`
	State       string       `bun:"state,notnull"`
	Error       string       `bun:"error"`
	CreatedAt   time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// leadRecord keeps ExternalID as its own column, mirrored from Meta, so the
// (tenant_id, source, external_id) unique index can enforce the dedup key.
type leadRecord struct {
	bun.BaseModel `bun:"table:leads,alias:l"`

	ID         string        `bun:"id,pk"`
	TenantID   string        `bun:"tenant_id,notnull"`
	Name       string        `bun:"name,notnull"`
	Email      string        `bun:"email"`
	Phone      string        `bun:"phone"`
	Source     string        `bun:"source,notnull"`
	Status     string        `bun:"status,notnull"`
	Priority   string        `bun:"priority,notnull"`
	ExternalID string        `bun:"external_id,notnull"`
	Meta       core.LeadMeta `bun:"meta,type:jsonb,notnull"`
	CreatedAt  time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
