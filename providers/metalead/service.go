package metalead

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/ingest"
	"github.com/goliatone/go-leads/registry"
)

// AccountGate is the registry surface the pipeline consults per event.
type AccountGate interface {
	EligibleAccount(ctx context.Context, tenantID, providerID, externalID string) (core.IntegrationAccount, bool, error)
}

// FieldSource is the secondary fetch surface, satisfied by GraphClient.
type FieldSource interface {
	FetchLeadFields(ctx context.Context, accessToken, leadID string) ([]core.Field, error)
}

// Service runs parsed lead events through the gate, the optional secondary
// fetch, and the ingest engine. Events are processed sequentially in arrival
// order; every failure is per-item.
type Service struct {
	gate   AccountGate
	engine *ingest.Engine
	fields FieldSource
	logger core.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger core.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(gate AccountGate, engine *ingest.Engine, fields FieldSource, opts ...ServiceOption) (*Service, error) {
	if gate == nil {
		return nil, fmt.Errorf("metalead: account gate is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("metalead: ingest engine is required")
	}
	if fields == nil {
		return nil, fmt.Errorf("metalead: field source is required")
	}
	_, logger := glog.Resolve("leads.metalead", nil, nil)
	service := &Service{
		gate:   gate,
		engine: engine,
		fields: fields,
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service, nil
}

// ProcessBatch ingests every event for one tenant. The returned error covers
// only batch-level faults (nil service, missing tenant); item outcomes land in
// the summary, with failed items recorded on their raw leads.
func (s *Service) ProcessBatch(ctx context.Context, tenantID string, events []LeadEvent) (core.IngestSummary, error) {
	summary := core.IngestSummary{}
	if s == nil || s.engine == nil {
		return summary, fmt.Errorf("metalead: service is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return summary, fmt.Errorf("metalead: tenant id is required")
	}

	for _, event := range events {
		outcome := s.processEvent(ctx, tenantID, event)
		summary.Observe(outcome)
	}
	return summary, nil
}

// ProcessWebhookBody parses a raw delivery body and ingests the batch. The
// queue-side batch command uses this entry point; the inline webhook handler
// parses before acknowledging and calls ProcessBatch directly.
func (s *Service) ProcessWebhookBody(ctx context.Context, tenantID string, body []byte) (core.IngestSummary, error) {
	events, err := ParseLeadEvents(body)
	if err != nil {
		return core.IngestSummary{}, err
	}
	return s.ProcessBatch(ctx, tenantID, events)
}

func (s *Service) processEvent(ctx context.Context, tenantID string, event LeadEvent) core.IngestOutcome {
	account, eligible, err := s.gate.EligibleAccount(ctx, tenantID, ProviderID, event.PageID)
	if err != nil {
		s.logEventError(ctx, tenantID, event, "registry lookup failed", err)
		return core.IngestOutcomeFailed
	}
	if !eligible {
		return core.IngestOutcomeSkipped
	}

	item := ingest.Item{
		ProviderID:  ProviderID,
		ExternalID:  event.ExternalID,
		PageID:      event.PageID,
		FormID:      event.FormID,
		CreatedTime: event.CreatedTime,
		Fields:      event.Fields,
	}

	if len(item.Fields) == 0 {
		fields, err := s.fields.FetchLeadFields(ctx, account.AccessToken, event.ExternalID)
		if err != nil {
			if recordErr := s.engine.IngestFailed(ctx, tenantID, item, err.Error()); recordErr != nil {
				s.logEventError(ctx, tenantID, event, "record fetch failure", recordErr)
			}
			return core.IngestOutcomeFailed
		}
		item.Fields = fields
	}

	outcome, err := s.engine.Ingest(ctx, tenantID, item)
	if err != nil {
		s.logEventError(ctx, tenantID, event, "ingest failed", err)
		return core.IngestOutcomeFailed
	}
	return outcome
}

func (s *Service) logEventError(ctx context.Context, tenantID string, event LeadEvent, message string, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.WithContext(ctx).Error("metalead "+message,
		"tenant_id", tenantID,
		"external_lead_id", event.ExternalID,
		"page_id", event.PageID,
		"error", err.Error(),
	)
}

var _ AccountGate = (*registry.Registry)(nil)
var _ FieldSource = (*GraphClient)(nil)
