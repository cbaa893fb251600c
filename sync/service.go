// Package sync is the operator-triggered pull path: refresh an account's form
// list from the provider and backfill the leads submitted inside a window.
// Unlike webhook delivery this path is synchronous and surfaces its failures
// to the caller.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/ingest"
	"github.com/goliatone/go-leads/providers/metalead"
)

// FormSource is the provider read surface, satisfied by metalead.GraphClient.
type FormSource interface {
	ListForms(ctx context.Context, accessToken, pageID string) ([]core.LeadForm, error)
	ListFormLeads(ctx context.Context, accessToken, formID string, since, until time.Time) ([]metalead.FormLead, error)
}

// Request scopes one manual sync. PageID narrows the sync to one account;
// empty means every active account of the tenant. The window bounds are
// optional and half-open on either side.
type Request struct {
	TenantID  string
	PageID    string
	StartDate time.Time
	EndDate   time.Time
}

type Result struct {
	LeadsSynced    int
	FormsRefreshed int
	Summary        core.IngestSummary
}

type Service struct {
	accounts core.AccountStore
	source   FormSource
	engine   *ingest.Engine
	logger   core.Logger
	Now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(accounts core.AccountStore, source FormSource, engine *ingest.Engine, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, fmt.Errorf("sync: account store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("sync: form source is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("sync: ingest engine is required")
	}
	_, logger := glog.Resolve("leads.sync", nil, nil)
	service := &Service{
		accounts: accounts,
		source:   source,
		engine:   engine,
		logger:   logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service, nil
}

// Sync refreshes forms and backfills window leads for the scoped accounts.
// Provider fetch failures are surfaced (this is an operator path); per-lead
// normalization failures stay absorbed in the summary as on every other path.
func (s *Service) Sync(ctx context.Context, req Request) (Result, error) {
	result := Result{}
	if s == nil || s.engine == nil {
		return result, fmt.Errorf("sync: service is not configured")
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return result, fmt.Errorf("sync: tenant id is required")
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		return result, fmt.Errorf("sync: end date precedes start date")
	}

	accounts, err := s.scopedAccounts(ctx, tenantID, strings.TrimSpace(req.PageID))
	if err != nil {
		return result, err
	}

	startedAt := s.now()
	for _, account := range accounts {
		if err := s.syncAccount(ctx, tenantID, account, req, &result); err != nil {
			return result, err
		}
	}

	result.LeadsSynced = result.Summary.Processed
	if s.logger != nil {
		s.logger.WithContext(ctx).Info("manual sync completed",
			"tenant_id", tenantID,
			"accounts", len(accounts),
			"forms_refreshed", result.FormsRefreshed,
			"leads_synced", result.LeadsSynced,
			"deduped", result.Summary.Deduped,
			"failed", result.Summary.Failed,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
	return result, nil
}

func (s *Service) scopedAccounts(ctx context.Context, tenantID, pageID string) ([]core.IntegrationAccount, error) {
	if pageID != "" {
		account, found, err := s.accounts.GetByExternalID(ctx, tenantID, metalead.ProviderID, pageID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("sync: account for page %s not found", pageID)
		}
		if !account.IsActive {
			return nil, fmt.Errorf("sync: account for page %s is inactive", pageID)
		}
		return []core.IntegrationAccount{account}, nil
	}
	return s.accounts.ListActive(ctx, tenantID, metalead.ProviderID)
}

func (s *Service) syncAccount(
	ctx context.Context,
	tenantID string,
	account core.IntegrationAccount,
	req Request,
	result *Result,
) error {
	forms, err := s.source.ListForms(ctx, account.AccessToken, account.ExternalID)
	if err != nil {
		return fmt.Errorf("sync: list forms for page %s: %w", account.ExternalID, err)
	}
	if err := s.accounts.SaveForms(ctx, tenantID, account.ID, forms); err != nil {
		return fmt.Errorf("sync: save forms for page %s: %w", account.ExternalID, err)
	}
	result.FormsRefreshed += len(forms)

	for _, form := range forms {
		leads, err := s.source.ListFormLeads(ctx, account.AccessToken, form.ExternalID, req.StartDate, req.EndDate)
		if err != nil {
			return fmt.Errorf("sync: list leads for form %s: %w", form.ExternalID, err)
		}
		for _, lead := range leads {
			outcome, err := s.engine.Ingest(ctx, tenantID, ingest.Item{
				ProviderID:  metalead.ProviderID,
				ExternalID:  lead.ExternalID,
				PageID:      account.ExternalID,
				FormID:      form.ExternalID,
				CreatedTime: lead.CreatedTime,
				Fields:      lead.Fields,
			})
			if err != nil {
				return fmt.Errorf("sync: ingest lead %s: %w", lead.ExternalID, err)
			}
			result.Summary.Observe(outcome)
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ FormSource = (*metalead.GraphClient)(nil)
