package federation

import "context"

// RepositoryPort defines persistence for federation settings and the sync
// run history. Sync logs are append-only; they are never updated in place.
type RepositoryPort interface {
	UpsertLDAP(ctx context.Context, cfg LDAPConfig) (*LDAPConfig, error)
	GetLDAP(ctx context.Context, tenant string) (*LDAPConfig, error)
	UpsertSSO(ctx context.Context, cfg SSOProviderConfig) (*SSOProviderConfig, error)
	GetSSO(ctx context.Context, tenant string) (*SSOProviderConfig, error)
	AppendSyncLog(ctx context.Context, entry SyncLog) (*SyncLog, error)
	SyncHistory(ctx context.Context, tenant string, limit int) ([]SyncLog, error)
}
