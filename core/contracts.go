package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

// IdempotencyClaimStore is the delivery-level dedupe ledger: a claim is
// granted once per key until completed, failed, or lease-expired.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type UpsertAccountInput struct {
	TenantID          string
	ProviderID        string
	ExternalID        string
	Name              string
	AccessToken       string
	IsActive          bool
	WebhookSubscribed bool
}

// AccountStore persists integration accounts and their form children. All
// operations are tenant-scoped; an account is owned by exactly one tenant.
type AccountStore interface {
	Upsert(ctx context.Context, in UpsertAccountInput) (IntegrationAccount, error)
	GetByExternalID(ctx context.Context, tenantID string, providerID string, externalID string) (IntegrationAccount, bool, error)
	ListActive(ctx context.Context, tenantID string, providerID string) ([]IntegrationAccount, error)
	SetActive(ctx context.Context, tenantID string, accountID string, active bool) error
	SaveForms(ctx context.Context, tenantID string, accountID string, forms []LeadForm) error
	IncrementFormLeadCount(ctx context.Context, tenantID string, formExternalID string) error
}

// RawLeadStore keeps the provider-native audit log. Upsert always
// overwrites-or-inserts keyed by (tenant, provider, external id) so
// redelivery never duplicates a record.
type RawLeadStore interface {
	Upsert(ctx context.Context, tenantID string, raw RawExternalLead) (RawExternalLead, error)
	Get(ctx context.Context, tenantID string, providerID string, externalID string) (RawExternalLead, bool, error)
	MarkProcessed(ctx context.Context, tenantID string, providerID string, externalID string) error
	MarkFailed(ctx context.Context, tenantID string, providerID string, externalID string, reason string) error
}

// LeadStore persists canonical leads. InsertIfAbsent must be atomic on the
// (tenant, source, external id) dedup key: under concurrent redelivery at
// most one insert wins and the others report inserted=false.
type LeadStore interface {
	InsertIfAbsent(ctx context.Context, tenantID string, lead CanonicalLead) (CanonicalLead, bool, error)
	FindBySourceExternalID(ctx context.Context, tenantID string, source string, externalID string) (CanonicalLead, bool, error)
}

// TenantRegistry enumerates every tenant for fan-out and resolves the
// caller-supplied token on operator-triggered paths.
type TenantRegistry interface {
	Resolve(ctx context.Context, token string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type StoreProvider interface {
	AccountStore() AccountStore
	RawLeadStore() RawLeadStore
	LeadStore() LeadStore
	TenantRegistry() TenantRegistry
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
