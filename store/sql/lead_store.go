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

type LeadStore struct {
	db   *bun.DB
	repo repository.Repository[*leadRecord]
}

func NewLeadStore(db *bun.DB) (*LeadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*leadRecord](db, leadHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid lead repository wiring: %w", err)
		}
	}
	return &LeadStore{
		db:   db,
		repo: repo,
	}, nil
}

// InsertIfAbsent rides the (tenant_id, source, external_id) unique index:
// under concurrent redelivery the database picks the single winner and every
// loser reads the winner's row back with inserted=false.
func (s *LeadStore) InsertIfAbsent(ctx context.Context, tenantID string, lead core.CanonicalLead) (core.CanonicalLead, bool, error) {
	if s == nil || s.db == nil {
		return core.CanonicalLead{}, false, fmt.Errorf("sqlstore: lead store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.CanonicalLead{}, false, fmt.Errorf("sqlstore: tenant id is required")
	}
	if err := lead.Validate(); err != nil {
		return core.CanonicalLead{}, false, err
	}

	now := time.Now().UTC()
	record := newLeadRecord(tenantID, lead, now)
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.CanonicalLead{}, false, err
		}
		existing, found, findErr := s.FindBySourceExternalID(ctx, tenantID, record.Source, record.ExternalID)
		if findErr != nil {
			return core.CanonicalLead{}, false, findErr
		}
		if !found {
			return core.CanonicalLead{}, false, fmt.Errorf(
				"sqlstore: lead vanished after dedup collision for tenant %q source %q external id %q",
				tenantID, record.Source, record.ExternalID,
			)
		}
		return existing, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *LeadStore) FindBySourceExternalID(
	ctx context.Context,
	tenantID string,
	source string,
	externalID string,
) (core.CanonicalLead, bool, error) {
	if s == nil || s.db == nil {
		return core.CanonicalLead{}, false, fmt.Errorf("sqlstore: lead store is not configured")
	}
	record := &leadRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.source = ?", strings.TrimSpace(source)).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.CanonicalLead{}, false, nil
		}
		return core.CanonicalLead{}, false, err
	}
	return record.toDomain(), true, nil
}
