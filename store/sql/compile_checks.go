package sqlstore

import "github.com/goliatone/go-leads/core"

var (
	_ core.AccountStore           = (*AccountStore)(nil)
	_ core.RawLeadStore           = (*RawLeadStore)(nil)
	_ core.LeadStore              = (*LeadStore)(nil)
	_ core.TenantRegistry         = (*TenantStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
