package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-leads/core"
)

type RepositoryFactory struct {
	db *bun.DB

	accountStore *AccountStore
	rawLeadStore *RawLeadStore
	leadStore    *LeadStore
	tenantStore  *TenantStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.accountStore != nil && f.leadStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) AccountStore() core.AccountStore {
	if f == nil {
		return nil
	}
	return f.accountStore
}

func (f *RepositoryFactory) RawLeadStore() core.RawLeadStore {
	if f == nil {
		return nil
	}
	return f.rawLeadStore
}

func (f *RepositoryFactory) LeadStore() core.LeadStore {
	if f == nil {
		return nil
	}
	return f.leadStore
}

func (f *RepositoryFactory) TenantRegistry() core.TenantRegistry {
	if f == nil {
		return nil
	}
	return f.tenantStore
}

// TenantStore exposes the concrete store for the admin paths (create, pause)
// the core.TenantRegistry contract does not carry.
func (f *RepositoryFactory) TenantStore() *TenantStore {
	if f == nil {
		return nil
	}
	return f.tenantStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	accountStore, err := NewAccountStore(f.db)
	if err != nil {
		return err
	}
	f.accountStore = accountStore
	rawLeadStore, err := NewRawLeadStore(f.db)
	if err != nil {
		return err
	}
	f.rawLeadStore = rawLeadStore
	leadStore, err := NewLeadStore(f.db)
	if err != nil {
		return err
	}
	f.leadStore = leadStore
	tenantStore, err := NewTenantStore(f.db)
	if err != nil {
		return err
	}
	f.tenantStore = tenantStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

// isNoRows matches the driver's empty-result error even when a query layer
// has wrapped it.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
