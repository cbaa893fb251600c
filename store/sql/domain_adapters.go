package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-leads/core"
)

func newAccountRecord(in core.UpsertAccountInput, now time.Time) *integrationAccountRecord {
	return &integrationAccountRecord{
		TenantID:          strings.TrimSpace(in.TenantID),
		ProviderID:        strings.TrimSpace(in.ProviderID),
		ExternalID:        strings.TrimSpace(in.ExternalID),
		Name:              strings.TrimSpace(in.Name),
		AccessToken:       strings.TrimSpace(in.AccessToken),
		IsActive:          in.IsActive,
		WebhookSubscribed: in.WebhookSubscribed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *integrationAccountRecord) toDomain() core.IntegrationAccount {
	if r == nil {
		return core.IntegrationAccount{}
	}
	return core.IntegrationAccount{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ProviderID:        r.ProviderID,
		ExternalID:        r.ExternalID,
		Name:              r.Name,
		AccessToken:       r.AccessToken,
		IsActive:          r.IsActive,
		WebhookSubscribed: r.WebhookSubscribed,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r *leadFormRecord) toDomain() core.LeadForm {
	if r == nil {
		return core.LeadForm{}
	}
	return core.LeadForm{
		ExternalID: r.ExternalID,
		Locale:     r.Locale,
		Name:       r.Name,
		Status:     r.Status,
		LeadCount:  r.LeadCount,
	}
}

func newRawLeadRecord(tenantID string, raw core.RawExternalLead, now time.Time) *rawExternalLeadRecord {
	state := raw.State
	if strings.TrimSpace(string(state)) == "" {
		state = core.RawLeadStateReceived
	}
	return &rawExternalLeadRecord{
		TenantID:    strings.TrimSpace(tenantID),
		ProviderID:  strings.TrimSpace(raw.ProviderID),
		ExternalID:  strings.TrimSpace(raw.ExternalID),
		PageID:      strings.TrimSpace(raw.PageID),
		FormID:      strings.TrimSpace(raw.FormID),
		CreatedTime: raw.CreatedTime,
		Fields:      copyFields(raw.Fields),
		State:       string(state),
		Error:       strings.TrimSpace(raw.Error),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *rawExternalLeadRecord) toDomain() core.RawExternalLead {
	if r == nil {
		return core.RawExternalLead{}
	}
	return core.RawExternalLead{
		ExternalID:  r.ExternalID,
		ProviderID:  r.ProviderID,
		PageID:      r.PageID,
		FormID:      r.FormID,
		CreatedTime: r.CreatedTime,
		Fields:      copyFields(r.Fields),
		State:       core.RawLeadState(r.State),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newLeadRecord(tenantID string, lead core.CanonicalLead, now time.Time) *leadRecord {
	status := strings.TrimSpace(lead.Status)
	if status == "" {
		status = core.LeadStatusNew
	}
	priority := strings.TrimSpace(lead.Priority)
	if priority == "" {
		priority = core.LeadPriorityMedium
	}
	meta := lead.Meta
	meta.Fields = copyFields(meta.Fields)
	return &leadRecord{
		TenantID:   strings.TrimSpace(tenantID),
		Name:       strings.TrimSpace(lead.Name),
		Email:      strings.TrimSpace(lead.Email),
		Phone:      strings.TrimSpace(lead.Phone),
		Source:     strings.TrimSpace(lead.Source),
		Status:     status,
		Priority:   priority,
		ExternalID: strings.TrimSpace(meta.ExternalID),
		Meta:       meta,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *leadRecord) toDomain() core.CanonicalLead {
	if r == nil {
		return core.CanonicalLead{}
	}
	meta := r.Meta
	meta.Fields = copyFields(meta.Fields)
	return core.CanonicalLead{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Source:    r.Source,
		Status:    r.Status,
		Priority:  r.Priority,
		Meta:      meta,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *tenantRecord) toDomain() core.Tenant {
	if r == nil {
		return core.Tenant{}
	}
	return core.Tenant{
		ID:     r.ID,
		Name:   r.Name,
		Active: r.IsActive,
	}
}

func copyFields(in []core.Field) []core.Field {
	if len(in) == 0 {
		return []core.Field{}
	}
	out := make([]core.Field, len(in))
	for i, field := range in {
		out[i] = core.Field{
			Name:   field.Name,
			Values: append([]string(nil), field.Values...),
		}
	}
	return out
}
