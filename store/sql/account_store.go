package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-leads/core"
)

type AccountStore struct {
	db       *bun.DB
	repo     repository.Repository[*integrationAccountRecord]
	formRepo repository.Repository[*leadFormRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationAccountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	formRepo := repository.NewRepository[*leadFormRecord](db, leadFormHandlers())
	if validator, ok := formRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid lead form repository wiring: %w", err)
		}
	}
	return &AccountStore{
		db:       db,
		repo:     repo,
		formRepo: formRepo,
	}, nil
}

// Upsert is keyed by (tenant, provider, external id): redelivered
// registrations update the existing row in place.
func (s *AccountStore) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.IntegrationAccount, error) {
	if s == nil || s.db == nil {
		return core.IntegrationAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	tenantID := strings.TrimSpace(in.TenantID)
	providerID := strings.TrimSpace(in.ProviderID)
	externalID := strings.TrimSpace(in.ExternalID)
	if tenantID == "" || providerID == "" || externalID == "" {
		return core.IntegrationAccount{}, fmt.Errorf("sqlstore: tenant id, provider id and external id are required")
	}

	now := time.Now().UTC()
	record := newAccountRecord(in, now)
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.IntegrationAccount{}, err
		}
		existing, found, findErr := s.findRecord(ctx, tenantID, providerID, externalID)
		if findErr != nil {
			return core.IntegrationAccount{}, findErr
		}
		if !found {
			return core.IntegrationAccount{}, fmt.Errorf(
				"%w: tenant %q provider %q external id %q",
				core.ErrAccountNotFound, tenantID, providerID, externalID,
			)
		}
		existing.Name = strings.TrimSpace(in.Name)
		existing.AccessToken = strings.TrimSpace(in.AccessToken)
		existing.IsActive = in.IsActive
		existing.WebhookSubscribed = in.WebhookSubscribed
		existing.UpdatedAt = now
		if _, updateErr := s.db.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return core.IntegrationAccount{}, updateErr
		}
		return existing.toDomain(), nil
	}
	return record.toDomain(), nil
}

func (s *AccountStore) GetByExternalID(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (core.IntegrationAccount, bool, error) {
	if s == nil || s.db == nil {
		return core.IntegrationAccount{}, false, fmt.Errorf("sqlstore: account store is not configured")
	}
	record, found, err := s.findRecord(ctx, tenantID, providerID, externalID)
	if err != nil || !found {
		return core.IntegrationAccount{}, false, err
	}
	account := record.toDomain()
	forms, err := s.listForms(ctx, record.TenantID, record.ID)
	if err != nil {
		return core.IntegrationAccount{}, false, err
	}
	account.Forms = forms
	return account, true, nil
}

// ListActive returns the tenant's active accounts for the provider. Forms are
// not attached; callers on this path only need identity and credentials.
func (s *AccountStore) ListActive(ctx context.Context, tenantID string, providerID string) ([]core.IntegrationAccount, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true)
		}),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.IntegrationAccount, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AccountStore) SetActive(ctx context.Context, tenantID string, accountID string, active bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	accountID = strings.TrimSpace(accountID)
	if tenantID == "" || accountID == "" {
		return fmt.Errorf("sqlstore: tenant id and account id are required")
	}
	result, err := s.db.NewUpdate().
		Model((*integrationAccountRecord)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", accountID).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: tenant %q account %q", core.ErrAccountNotFound, tenantID, accountID)
	}
	return nil
}

// SaveForms refreshes the account's form list from the provider. Existing
// forms update name, locale and status in place; lead_count is owned by the
// increment path and survives refreshes.
func (s *AccountStore) SaveForms(ctx context.Context, tenantID string, accountID string, forms []core.LeadForm) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	accountID = strings.TrimSpace(accountID)
	if tenantID == "" || accountID == "" {
		return fmt.Errorf("sqlstore: tenant id and account id are required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*integrationAccountRecord)(nil)).
			Where("?TableAlias.tenant_id = ?", tenantID).
			Where("?TableAlias.id = ?", accountID).
			Where("?TableAlias.deleted_at IS NULL").
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: tenant %q account %q", core.ErrAccountNotFound, tenantID, accountID)
		}

		now := time.Now().UTC()
		for _, form := range forms {
			externalID := strings.TrimSpace(form.ExternalID)
			if externalID == "" {
				continue
			}
			record := &leadFormRecord{
				ID:         uuid.NewString(),
				TenantID:   tenantID,
				AccountID:  accountID,
				ExternalID: externalID,
				Name:       strings.TrimSpace(form.Name),
				Locale:     strings.TrimSpace(form.Locale),
				Status:     strings.TrimSpace(form.Status),
				LeadCount:  form.LeadCount,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				if !isUniqueViolation(err) {
					return err
				}
				if _, err := tx.NewUpdate().
					Model((*leadFormRecord)(nil)).
					Set("name = ?", record.Name).
					Set("locale = ?", record.Locale).
					Set("status = ?", record.Status).
					Set("updated_at = ?", now).
					Where("tenant_id = ?", tenantID).
					Where("account_id = ?", accountID).
					Where("external_id = ?", externalID).
					Exec(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *AccountStore) IncrementFormLeadCount(ctx context.Context, tenantID string, formExternalID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	formExternalID = strings.TrimSpace(formExternalID)
	if tenantID == "" || formExternalID == "" {
		return fmt.Errorf("sqlstore: tenant id and form external id are required")
	}
	result, err := s.db.NewUpdate().
		Model((*leadFormRecord)(nil)).
		Set("lead_count = lead_count + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("external_id = ?", formExternalID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: lead form not found for tenant %q external id %q", tenantID, formExternalID)
	}
	return nil
}

func (s *AccountStore) findRecord(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (*integrationAccountRecord, bool, error) {
	record := &integrationAccountRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

func (s *AccountStore) listForms(ctx context.Context, tenantID string, accountID string) ([]core.LeadForm, error) {
	records, _, err := s.formRepo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy("account_id", "=", accountID),
		repository.OrderBy("external_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.LeadForm, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
