package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRawLeadStateTransition = errors.New("core: invalid raw lead state transition")
	ErrTenantNotFound                = errors.New("core: tenant not found")
	ErrAccountNotFound               = errors.New("core: integration account not found")
)

const (
	LeadStatusNew      = "new"
	LeadPriorityMedium = "medium"
)

// Tenant is an opaque handle to one customer's isolated data partition. The
// pipeline never interprets the ID beyond scoping store operations with it.
type Tenant struct {
	ID     string
	Name   string
	Active bool
}

func (t Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("core: tenant id is required")
	}
	return nil
}

// IntegrationAccount is one externally registered lead source: a social page
// or a credentialed portal account, owned by exactly one tenant. Access
// tokens live on the account and are loaded per request; they are never
// cached process-wide so tenants' credentials cannot cross-contaminate.
type IntegrationAccount struct {
	ID                string
	TenantID          string
	ProviderID        string
	ExternalID        string
	Name              string
	AccessToken       string
	IsActive          bool
	WebhookSubscribed bool
	Forms             []LeadForm
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LeadForm is a sub-resource of IntegrationAccount, refreshed whenever the
// account's form list is fetched from the provider. LeadCount is display-only.
type LeadForm struct {
	ExternalID string
	Locale     string
	Name       string
	Status     string
	LeadCount  int
}

// Field is one provider-native (name, value-list) pair. Order and content are
// preserved verbatim through normalization for traceability.
type Field struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type RawLeadState string

const (
	RawLeadStateReceived  RawLeadState = "received"
	RawLeadStateProcessed RawLeadState = "processed"
	RawLeadStateFailed    RawLeadState = "failed"
)

// RawExternalLead is the provider-native record exactly as received, kept as
// an audit/retry log independent of normalization outcome. One record per
// (tenant, provider, external id); redelivery updates in place.
type RawExternalLead struct {
	ExternalID  string
	ProviderID  string
	PageID      string
	FormID      string
	CreatedTime time.Time
	Fields      []Field
	State       RawLeadState
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *RawExternalLead) TransitionTo(state RawLeadState, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.State == state {
		r.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			r.Error = strings.TrimSpace(reason)
		}
		return nil
	}
	if !rawLeadTransitionAllowed(r.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRawLeadStateTransition, r.State, state)
	}
	r.State = state
	r.UpdatedAt = now
	r.Error = strings.TrimSpace(reason)
	return nil
}

// Processed reports whether normalization produced a canonical lead. Failed
// raw leads keep Processed false with the failure reason in Error; both
// terminal states stay replayable.
func (r RawExternalLead) Processed() bool {
	return r.State == RawLeadStateProcessed
}

func rawLeadTransitionAllowed(current, next RawLeadState) bool {
	allowed := map[RawLeadState]map[RawLeadState]struct{}{
		RawLeadStateReceived: {
			RawLeadStateProcessed: {},
			RawLeadStateFailed:    {},
		},
		// Terminal states are replayable: a stored raw lead may be pushed
		// through normalization again without a fresh delivery.
		RawLeadStateFailed: {
			RawLeadStateReceived:  {},
			RawLeadStateProcessed: {},
		},
		RawLeadStateProcessed: {
			RawLeadStateReceived: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// LeadMeta preserves the external identifiers and the complete original field
// list on the canonical record. Normalization is lossy for matching but
// lossless for storage.
type LeadMeta struct {
	ExternalID string  `json:"external_id"`
	FormID     string  `json:"form_id,omitempty"`
	PageID     string  `json:"page_id,omitempty"`
	Platform   string  `json:"platform"`
	Fields     []Field `json:"fields"`
}

// CanonicalLead is the tenant-visible CRM record produced by normalization.
// Invariant: within one tenant at most one canonical lead exists per
// (source, external id) pair.
type CanonicalLead struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Source    string
	Status    string
	Priority  string
	Meta      LeadMeta
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l CanonicalLead) Validate() error {
	if strings.TrimSpace(l.Name) == "" && strings.TrimSpace(l.Email) == "" {
		return fmt.Errorf("core: canonical lead requires a name or an email")
	}
	if strings.TrimSpace(l.Source) == "" {
		return fmt.Errorf("core: canonical lead source is required")
	}
	if strings.TrimSpace(l.Meta.ExternalID) == "" {
		return fmt.Errorf("core: canonical lead external id is required")
	}
	return nil
}

// IngestOutcome classifies what the pipeline did with one inbound item.
type IngestOutcome string

const (
	IngestOutcomeProcessed IngestOutcome = "processed"
	IngestOutcomeDeduped   IngestOutcome = "deduped"
	IngestOutcomeSkipped   IngestOutcome = "skipped"
	IngestOutcomeFailed    IngestOutcome = "failed"
)

// IngestSummary accumulates per-batch accounting surfaced in webhook
// acknowledgements and sync responses.
type IngestSummary struct {
	Received  int
	Processed int
	Deduped   int
	Skipped   int
	Failed    int
}

func (s *IngestSummary) Observe(outcome IngestOutcome) {
	if s == nil {
		return
	}
	s.Received++
	switch outcome {
	case IngestOutcomeProcessed:
		s.Processed++
	case IngestOutcomeDeduped:
		s.Deduped++
	case IngestOutcomeSkipped:
		s.Skipped++
	case IngestOutcomeFailed:
		s.Failed++
	}
}

func (s IngestSummary) Metadata() map[string]any {
	return map[string]any{
		"received":  s.Received,
		"processed": s.Processed,
		"deduped":   s.Deduped,
		"skipped":   s.Skipped,
		"failed":    s.Failed,
	}
}
