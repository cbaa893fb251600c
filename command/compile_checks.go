package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[UpsertAccountMessage]    = (*UpsertAccountCommand)(nil)
	_ gocmd.Commander[SetAccountActiveMessage] = (*SetAccountActiveCommand)(nil)
	_ gocmd.Commander[CreateTenantMessage]     = (*CreateTenantCommand)(nil)
	_ gocmd.Commander[SetTenantActiveMessage]  = (*SetTenantActiveCommand)(nil)
	_ gocmd.Commander[SyncLeadsMessage]        = (*SyncLeadsCommand)(nil)
	_ gocmd.Commander[ReplayRawLeadMessage]    = (*ReplayRawLeadCommand)(nil)
	_ gocmd.Commander[ProcessLeadBatchMessage] = (*ProcessLeadBatchCommand)(nil)
)
