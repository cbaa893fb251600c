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

type RawLeadStore struct {
	db   *bun.DB
	repo repository.Repository[*rawExternalLeadRecord]
}

func NewRawLeadStore(db *bun.DB) (*RawLeadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rawExternalLeadRecord](db, rawLeadHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid raw lead repository wiring: %w", err)
		}
	}
	return &RawLeadStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert overwrites-or-inserts on (tenant, provider, external id). A loser of
// a concurrent insert race falls through to the update path, so redelivery
// always lands on the single existing row.
func (s *RawLeadStore) Upsert(ctx context.Context, tenantID string, raw core.RawExternalLead) (core.RawExternalLead, error) {
	if s == nil || s.db == nil {
		return core.RawExternalLead{}, fmt.Errorf("sqlstore: raw lead store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	providerID := strings.TrimSpace(raw.ProviderID)
	externalID := strings.TrimSpace(raw.ExternalID)
	if tenantID == "" || providerID == "" || externalID == "" {
		return core.RawExternalLead{}, fmt.Errorf("sqlstore: tenant id, provider id and external id are required")
	}

	now := time.Now().UTC()
	record := newRawLeadRecord(tenantID, raw, now)
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.RawExternalLead{}, err
		}
		if _, updateErr := s.db.NewUpdate().
			Model(record).
			Column("page_id", "form_id", "created_time", "fields", "state", "error", "updated_at").
			Where("tenant_id = ?", tenantID).
			Where("provider_id = ?", providerID).
			Where("external_id = ?", externalID).
			Exec(ctx); updateErr != nil {
			return core.RawExternalLead{}, updateErr
		}
	}

	stored, found, err := s.Get(ctx, tenantID, providerID, externalID)
	if err != nil {
		return core.RawExternalLead{}, err
	}
	if !found {
		return core.RawExternalLead{}, fmt.Errorf(
			"sqlstore: raw lead vanished after upsert for tenant %q provider %q external id %q",
			tenantID, providerID, externalID,
		)
	}
	return stored, nil
}

func (s *RawLeadStore) Get(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (core.RawExternalLead, bool, error) {
	if s == nil || s.db == nil {
		return core.RawExternalLead{}, false, fmt.Errorf("sqlstore: raw lead store is not configured")
	}
	record, found, err := s.findRecord(ctx, tenantID, providerID, externalID)
	if err != nil || !found {
		return core.RawExternalLead{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *RawLeadStore) MarkProcessed(ctx context.Context, tenantID string, providerID string, externalID string) error {
	return s.transition(ctx, tenantID, providerID, externalID, core.RawLeadStateProcessed, "")
}

func (s *RawLeadStore) MarkFailed(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
	reason string,
) error {
	return s.transition(ctx, tenantID, providerID, externalID, core.RawLeadStateFailed, reason)
}

// transition loads the row so the domain state machine validates the move
// before anything is written back.
func (s *RawLeadStore) transition(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
	state core.RawLeadState,
	reason string,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: raw lead store is not configured")
	}
	record, found, err := s.findRecord(ctx, tenantID, providerID, externalID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf(
			"sqlstore: raw lead not found for tenant %q provider %q external id %q",
			tenantID, providerID, externalID,
		)
	}

	now := time.Now().UTC()
	domain := record.toDomain()
	if err := domain.TransitionTo(state, reason, now); err != nil {
		return err
	}

	_, err = s.db.NewUpdate().
		Model((*rawExternalLeadRecord)(nil)).
		Set("state = ?", string(domain.State)).
		Set("error = ?", domain.Error).
		Set("updated_at = ?", now).
		Where("id = ?", record.ID).
		Exec(ctx)
	return err
}

func (s *RawLeadStore) findRecord(
	ctx context.Context,
	tenantID string,
	providerID string,
	externalID string,
) (*rawExternalLeadRecord, bool, error) {
	record := &rawExternalLeadRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
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
