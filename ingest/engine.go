// Package ingest is the dedup/upsert engine: idempotent persistence of raw
// external leads and canonical leads, keyed by the provider-issued external
// identifier and scoped per tenant.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/normalize"
)

// Item is one inbound lead after provider-specific parsing: external
// identifiers plus the provider-native field list, ready for normalization.
type Item struct {
	ProviderID  string
	ExternalID  string
	PageID      string
	FormID      string
	CreatedTime time.Time
	Fields      []core.Field
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.ProviderID) == "" {
		return fmt.Errorf("ingest: provider id is required")
	}
	if strings.TrimSpace(i.ExternalID) == "" {
		return fmt.Errorf("ingest: external lead id is required")
	}
	return nil
}

type Engine struct {
	raws    core.RawLeadStore
	leads   core.LeadStore
	forms   core.AccountStore
	logger  core.Logger
	metrics core.MetricsRecorder
	Now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// WithFormCounter enables the display-only per-form lead counter. Optional:
// the XML provider has no forms.
func WithFormCounter(accounts core.AccountStore) Option {
	return func(e *Engine) {
		e.forms = accounts
	}
}

func New(raws core.RawLeadStore, leads core.LeadStore, opts ...Option) (*Engine, error) {
	if raws == nil {
		return nil, fmt.Errorf("ingest: raw lead store is required")
	}
	if leads == nil {
		return nil, fmt.Errorf("ingest: lead store is required")
	}
	_, logger := glog.Resolve("leads.ingest", nil, nil)
	engine := &Engine{
		raws:    raws,
		leads:   leads,
		logger:  logger,
		metrics: core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Ingest runs one item through raw upsert, normalization, and the atomic
// canonical insert. Normalization failures are absorbed: the raw lead is
// marked failed with the reason recorded and a failed outcome is returned
// with a nil error, so one bad lead never drops the rest of a batch. Store
// errors are returned for the caller to surface or record.
func (e *Engine) Ingest(ctx context.Context, tenantID string, item Item) (core.IngestOutcome, error) {
	startedAt := e.now()
	if err := e.validate(tenantID, item); err != nil {
		return core.IngestOutcomeFailed, err
	}
	tenantID = strings.TrimSpace(tenantID)

	if _, err := e.raws.Upsert(ctx, tenantID, rawFromItem(item, startedAt)); err != nil {
		return core.IngestOutcomeFailed, fmt.Errorf("ingest: upsert raw lead: %w", err)
	}

	outcome, err := e.normalizeAndInsert(ctx, tenantID, item)
	e.observe(ctx, startedAt, tenantID, item, outcome, err)
	return outcome, err
}

// IngestFailed records an item that already failed upstream (e.g. the
// secondary field fetch timed out) so the raw audit log keeps the failure
// reason without ever reaching normalization.
func (e *Engine) IngestFailed(ctx context.Context, tenantID string, item Item, reason string) error {
	now := e.now()
	if err := e.validate(tenantID, item); err != nil {
		return err
	}
	tenantID = strings.TrimSpace(tenantID)

	raw := rawFromItem(item, now)
	raw.State = core.RawLeadStateFailed
	raw.Error = strings.TrimSpace(reason)
	if _, err := e.raws.Upsert(ctx, tenantID, raw); err != nil {
		return fmt.Errorf("ingest: upsert failed raw lead: %w", err)
	}
	e.observe(ctx, now, tenantID, item, core.IngestOutcomeFailed, nil)
	return nil
}

// Replay pushes a stored raw lead through normalization again without a fresh
// delivery. Both terminal raw states are replayable.
func (e *Engine) Replay(ctx context.Context, tenantID, providerID, externalID string) (core.IngestOutcome, error) {
	raw, found, err := e.raws.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(providerID), strings.TrimSpace(externalID))
	if err != nil {
		return core.IngestOutcomeFailed, err
	}
	if !found {
		return core.IngestOutcomeFailed, fmt.Errorf("ingest: raw lead %s/%s not found", providerID, externalID)
	}
	return e.normalizeAndInsert(ctx, strings.TrimSpace(tenantID), Item{
		ProviderID:  raw.ProviderID,
		ExternalID:  raw.ExternalID,
		PageID:      raw.PageID,
		FormID:      raw.FormID,
		CreatedTime: raw.CreatedTime,
		Fields:      raw.Fields,
	})
}

func (e *Engine) normalizeAndInsert(ctx context.Context, tenantID string, item Item) (core.IngestOutcome, error) {
	lead, err := normalize.Lead(normalize.Input{
		ExternalID: item.ExternalID,
		FormID:     item.FormID,
		PageID:     item.PageID,
		ProviderID: item.ProviderID,
		Fields:     item.Fields,
		Now:        e.now(),
	})
	if err != nil {
		if errors.Is(err, normalize.ErrNoContact) {
			if markErr := e.raws.MarkFailed(ctx, tenantID, item.ProviderID, item.ExternalID, err.Error()); markErr != nil {
				return core.IngestOutcomeFailed, fmt.Errorf("ingest: mark raw lead failed: %w", markErr)
			}
			return core.IngestOutcomeFailed, nil
		}
		return core.IngestOutcomeFailed, err
	}

	// Fast-path find keeps redelivery cheap; correctness rests on the
	// store's atomic insert-if-absent for the (tenant, source, external id)
	// dedup key.
	if _, exists, err := e.leads.FindBySourceExternalID(ctx, tenantID, lead.Source, lead.Meta.ExternalID); err != nil {
		return core.IngestOutcomeFailed, fmt.Errorf("ingest: find canonical lead: %w", err)
	} else if exists {
		if err := e.raws.MarkProcessed(ctx, tenantID, item.ProviderID, item.ExternalID); err != nil {
			return core.IngestOutcomeFailed, fmt.Errorf("ingest: mark raw lead processed: %w", err)
		}
		return core.IngestOutcomeDeduped, nil
	}

	_, inserted, err := e.leads.InsertIfAbsent(ctx, tenantID, *lead)
	if err != nil {
		return core.IngestOutcomeFailed, fmt.Errorf("ingest: insert canonical lead: %w", err)
	}
	if err := e.raws.MarkProcessed(ctx, tenantID, item.ProviderID, item.ExternalID); err != nil {
		return core.IngestOutcomeFailed, fmt.Errorf("ingest: mark raw lead processed: %w", err)
	}
	if !inserted {
		return core.IngestOutcomeDeduped, nil
	}

	if e.forms != nil && strings.TrimSpace(item.FormID) != "" {
		// Display-only counter; a failure here must not fail the lead.
		if err := e.forms.IncrementFormLeadCount(ctx, tenantID, item.FormID); err != nil {
			e.logError(ctx, "increment form lead count failed", map[string]any{
				"tenant_id": tenantID,
				"form_id":   item.FormID,
				"error":     err.Error(),
			})
		}
	}
	return core.IngestOutcomeProcessed, nil
}

func (e *Engine) validate(tenantID string, item Item) error {
	if e == nil || e.raws == nil || e.leads == nil {
		return fmt.Errorf("ingest: engine is not configured")
	}
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("ingest: tenant id is required")
	}
	return item.Validate()
}

func (e *Engine) observe(
	ctx context.Context,
	startedAt time.Time,
	tenantID string,
	item Item,
	outcome core.IngestOutcome,
	err error,
) {
	fields := map[string]any{
		"tenant_id":        tenantID,
		"provider_id":      item.ProviderID,
		"external_lead_id": item.ExternalID,
		"outcome":          string(outcome),
		"duration_ms":      time.Since(startedAt).Milliseconds(),
	}
	tags := map[string]string{
		"provider_id": item.ProviderID,
		"outcome":     string(outcome),
	}
	e.metrics.IncCounter(ctx, "leads.ingest.total", 1, tags)
	e.metrics.ObserveHistogram(ctx, "leads.ingest.duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)
	if err != nil {
		fields["error"] = err.Error()
		e.logError(ctx, "lead ingest failed", fields)
		return
	}
	e.logInfo(ctx, "lead ingest "+string(outcome), fields)
}

func (e *Engine) logInfo(ctx context.Context, message string, fields map[string]any) {
	e.logWithLevel(ctx, "info", message, fields)
}

func (e *Engine) logError(ctx context.Context, message string, fields map[string]any) {
	e.logWithLevel(ctx, "error", message, fields)
}

func (e *Engine) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	logger := e.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func rawFromItem(item Item, now time.Time) core.RawExternalLead {
	return core.RawExternalLead{
		ExternalID:  strings.TrimSpace(item.ExternalID),
		ProviderID:  strings.TrimSpace(item.ProviderID),
		PageID:      strings.TrimSpace(item.PageID),
		FormID:      strings.TrimSpace(item.FormID),
		CreatedTime: item.CreatedTime,
		Fields:      append([]core.Field(nil), item.Fields...),
		State:       core.RawLeadStateReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
