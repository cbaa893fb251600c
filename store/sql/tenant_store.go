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

type CreateTenantInput struct {
	ID           string
	Name         string
	WebhookToken string
	Active       bool
}

type TenantStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantRecord]
}

func NewTenantStore(db *bun.DB) (*TenantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantRecord](db, tenantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant repository wiring: %w", err)
		}
	}
	return &TenantStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *TenantStore) Create(ctx context.Context, in CreateTenantInput) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	name := strings.TrimSpace(in.Name)
	token := strings.TrimSpace(in.WebhookToken)
	if name == "" || token == "" {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant name and webhook token are required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	record := &tenantRecord{
		ID:           id,
		Name:         name,
		WebhookToken: token,
		IsActive:     in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Tenant{}, fmt.Errorf("sqlstore: tenant webhook token already in use")
		}
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

func (s *TenantStore) SetActive(ctx context.Context, tenantID string, active bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*tenantRecord)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", tenantID).
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
		return fmt.Errorf("%w: id %q", core.ErrTenantNotFound, tenantID)
	}
	return nil
}

// Resolve treats the webhook token as a credential: an unknown token and a
// paused tenant's token fail identically so callers cannot probe which
// tenants exist.
func (s *TenantStore) Resolve(ctx context.Context, token string) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Tenant{}, fmt.Errorf("%w: empty token", core.ErrTenantNotFound)
	}
	record := &tenantRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.webhook_token = ?", token).
		Where("?TableAlias.is_active = ?", true).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Tenant{}, fmt.Errorf("%w: unrecognized token", core.ErrTenantNotFound)
		}
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

// List returns every non-deleted tenant, paused ones included; fan-out
// filters on Active itself.
func (s *TenantStore) List(ctx context.Context) ([]core.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Tenant, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
