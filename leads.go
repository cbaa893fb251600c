// Package leads wires the lead ingestion pipeline: stores, registry, ingest
// engine, provider surfaces, inbound dispatch, sync, and the command wrappers.
// Setup is the one assembly point; every collaborator it builds can also be
// injected for tests and partial deployments.
package leads

import (
	"context"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	job "github.com/goliatone/go-job"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-leads/adapters/gocommand"
	"github.com/goliatone/go-leads/adapters/gologger"
	"github.com/goliatone/go-leads/command"
	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/dispatch"
	"github.com/goliatone/go-leads/fanout"
	"github.com/goliatone/go-leads/inbound"
	"github.com/goliatone/go-leads/ingest"
	"github.com/goliatone/go-leads/providers/estatexml"
	"github.com/goliatone/go-leads/providers/metalead"
	"github.com/goliatone/go-leads/registry"
	sqlstore "github.com/goliatone/go-leads/store/sql"
	leadsync "github.com/goliatone/go-leads/sync"
	"github.com/goliatone/go-leads/transport"
	"github.com/goliatone/go-leads/webhooks"
)

type Config = core.Config

// Commands are the go-command wrappers for the operator and admin mutations.
// They register on a go-command registry through adapters/gocommand.
type Commands struct {
	UpsertAccount    *command.UpsertAccountCommand
	SetAccountActive *command.SetAccountActiveCommand
	CreateTenant     *command.CreateTenantCommand
	SetTenantActive  *command.SetTenantActiveCommand
	SyncLeads        *command.SyncLeadsCommand
	ReplayRawLead    *command.ReplayRawLeadCommand
	ProcessLeadBatch *command.ProcessLeadBatchCommand
}

// Pipeline is the assembled module. The inbound dispatcher is the request
// surface; everything else is reachable for callers that embed individual
// stages.
type Pipeline struct {
	config         Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	stores         core.StoreProvider
	registry       *registry.Registry
	engine         *ingest.Engine
	boundary       *dispatch.Boundary
	dispatcher     *inbound.Dispatcher
	syncSvc        *leadsync.Service
	commands       Commands
}

type Option func(*setupOptions)

type setupOptions struct {
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	storeFactory      core.RepositoryStoreFactory
	stores            core.StoreProvider
	detacher          dispatch.Detacher
	transportAdapter  core.TransportAdapter
	cacheService      repositorycache.CacheService
	claimStore        core.IdempotencyClaimStore
	metrics           core.MetricsRecorder
}

func WithLogger(logger core.Logger) Option {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *setupOptions) {
		o.loggerProvider = provider
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *setupOptions) {
		o.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *setupOptions) {
		o.optionsResolver = resolver
	}
}

// WithPersistenceClient supplies the database handle the store factory builds
// from. Accepts a *bun.DB or a go-persistence-bun client.
func WithPersistenceClient(client any) Option {
	return func(o *setupOptions) {
		o.persistenceClient = client
	}
}

func WithRepositoryFactory(factory core.RepositoryStoreFactory) Option {
	return func(o *setupOptions) {
		o.storeFactory = factory
	}
}

// WithStoreProvider bypasses the factory entirely, e.g. for in-memory stores
// in tests.
func WithStoreProvider(stores core.StoreProvider) Option {
	return func(o *setupOptions) {
		o.stores = stores
	}
}

// WithDetacher swaps the async boundary, e.g. dispatch.SyncDetacher for
// deterministic tests or a queue-backed dispatcher for worker deployments.
func WithDetacher(detacher dispatch.Detacher) Option {
	return func(o *setupOptions) {
		o.detacher = detacher
	}
}

func WithTransportAdapter(adapter core.TransportAdapter) Option {
	return func(o *setupOptions) {
		o.transportAdapter = adapter
	}
}

// WithCacheService fronts registry account lookups with go-repository-cache.
// Account mutations through the commands invalidate the cached entry.
func WithCacheService(cacheService repositorycache.CacheService) Option {
	return func(o *setupOptions) {
		o.cacheService = cacheService
	}
}

func WithIdempotencyClaimStore(store core.IdempotencyClaimStore) Option {
	return func(o *setupOptions) {
		o.claimStore = store
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *setupOptions) {
		o.metrics = recorder
	}
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Setup resolves configuration (defaults < loaded < runtime overrides) and
// assembles the full pipeline. The cfg argument is the runtime override
// layer; pass the zero value to run on loaded and default configuration.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Pipeline, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	loggerProvider, logger := gologger.Resolve("leads", options.loggerProvider, options.logger)

	resolved, err := resolveConfig(ctx, cfg, options)
	if err != nil {
		return nil, err
	}

	stores, err := resolveStores(options)
	if err != nil {
		return nil, err
	}

	lookup, invalidator, err := resolveLookup(stores.AccountStore(), options)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(stores.AccountStore(), stores.TenantRegistry(),
		registry.WithLogger(logger),
		registry.WithLookup(lookup),
	)
	if err != nil {
		return nil, err
	}

	engineOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithFormCounter(stores.AccountStore()),
	}
	if options.metrics != nil {
		engineOpts = append(engineOpts, ingest.WithMetricsRecorder(options.metrics))
	}
	engine, err := ingest.New(stores.RawLeadStore(), stores.LeadStore(), engineOpts...)
	if err != nil {
		return nil, err
	}

	transportAdapter := options.transportAdapter
	if transportAdapter == nil {
		transportAdapter = transport.NewDefaultRegistry().Resolve(transport.KindREST)
	}
	graph, err := metalead.NewGraphClient(transportAdapter, resolved.MetaLead)
	if err != nil {
		return nil, err
	}

	metaService, err := metalead.NewService(reg, engine, graph,
		metalead.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var boundary *dispatch.Boundary
	detacher := options.detacher
	if detacher == nil {
		boundary = dispatch.New(dispatch.WithLogger(logger))
		detacher = boundary
	}

	webhookHandler, err := metalead.NewWebhookHandler(metaService, stores.TenantRegistry(), detacher)
	if err != nil {
		return nil, err
	}
	verificationHandler := metalead.NewVerificationHandler(resolved.MetaLead.VerifyToken)

	router, err := fanout.New(reg, engine, fanout.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	estateHandler, err := estatexml.NewWebhookHandler(router)
	if err != nil {
		return nil, err
	}

	syncSvc, err := leadsync.NewService(stores.AccountStore(), graph, engine,
		leadsync.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	syncHandler, err := leadsync.NewHandler(syncSvc, stores.TenantRegistry())
	if err != nil {
		return nil, err
	}

	claimStore := options.claimStore
	if claimStore == nil {
		claimStore = inbound.NewInMemoryClaimStore()
	}
	dispatcher := inbound.NewDispatcher(claimStore)
	if err := dispatcher.RegisterTemplate(webhooks.NewMetaLeadWebhookTemplate(resolved.MetaLead.AppSecret)); err != nil {
		return nil, err
	}
	if err := dispatcher.RegisterTemplate(webhooks.NewEstateXMLWebhookTemplate(resolved.EstateXML.PushToken)); err != nil {
		return nil, err
	}
	for _, registration := range []struct {
		providerID string
		handler    core.InboundHandler
	}{
		{"metalead", webhookHandler},
		{"metalead", verificationHandler},
		{"metalead", syncHandler},
		{"estatexml", estateHandler},
	} {
		if err := dispatcher.Register(registration.providerID, registration.handler); err != nil {
			return nil, err
		}
	}

	commands := Commands{
		UpsertAccount:    command.NewUpsertAccountCommand(stores.AccountStore(), invalidator),
		SetAccountActive: command.NewSetAccountActiveCommand(stores.AccountStore(), invalidator),
		SyncLeads:        command.NewSyncLeadsCommand(syncSvc),
		ReplayRawLead:    command.NewReplayRawLeadCommand(engine),
		ProcessLeadBatch: command.NewProcessLeadBatchCommand(map[string]command.LeadBatchProcessor{
			metalead.ProviderID: metaService,
		}),
	}
	if admin := resolveTenantAdmin(stores); admin != nil {
		commands.CreateTenant = command.NewCreateTenantCommand(admin)
		commands.SetTenantActive = command.NewSetTenantActiveCommand(admin)
	}

	return &Pipeline{
		config:         resolved,
		logger:         logger,
		loggerProvider: loggerProvider,
		stores:         stores,
		registry:       reg,
		engine:         engine,
		boundary:       boundary,
		dispatcher:     dispatcher,
		syncSvc:        syncSvc,
		commands:       commands,
	}, nil
}

func (p *Pipeline) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

func (p *Pipeline) Stores() core.StoreProvider {
	if p == nil {
		return nil
	}
	return p.stores
}

func (p *Pipeline) Registry() *registry.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Pipeline) Engine() *ingest.Engine {
	if p == nil {
		return nil
	}
	return p.engine
}

// Inbound is the request surface: transports hand verified-or-not deliveries
// to Dispatch and relay the InboundResult.
func (p *Pipeline) Inbound() *inbound.Dispatcher {
	if p == nil {
		return nil
	}
	return p.dispatcher
}

func (p *Pipeline) Sync() *leadsync.Service {
	if p == nil {
		return nil
	}
	return p.syncSvc
}

func (p *Pipeline) Commands() Commands {
	if p == nil {
		return Commands{}
	}
	return p.commands
}

// RegisterCommands subscribes every built command on the go-command bus and
// mirrors it into the adapter's registry. Tenant admin commands register only
// when the store provider made them available. A registration failure rolls
// back the subscriptions already made.
func (p *Pipeline) RegisterCommands(adapter *gocommand.RegistryAdapter) ([]commanddispatcher.Subscription, error) {
	if p == nil {
		return nil, fmt.Errorf("leads: pipeline is nil")
	}
	if adapter == nil {
		return nil, fmt.Errorf("leads: command registry adapter is required")
	}

	var subscriptions []commanddispatcher.Subscription
	rollback := func() {
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
	}
	attach := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			rollback()
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.UpsertAccount)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.SetAccountActive)); err != nil {
		return nil, err
	}
	if p.commands.CreateTenant != nil {
		if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.CreateTenant)); err != nil {
			return nil, err
		}
	}
	if p.commands.SetTenantActive != nil {
		if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.SetTenantActive)); err != nil {
			return nil, err
		}
	}
	if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.SyncLeads)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.ReplayRawLead)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.RegisterAndSubscribe(adapter, p.commands.ProcessLeadBatch)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// JobLogging exposes the resolved pipeline logger through the go-job bridges
// for deployments that attach a queue worker.
func (p *Pipeline) JobLogging() (job.LoggerProvider, job.Logger) {
	if p == nil {
		return nil, nil
	}
	return gologger.ToJobProvider(p.loggerProvider), gologger.ToJobLogger(p.logger)
}

// Shutdown waits for detached webhook batches to drain. Only meaningful when
// Setup owns the boundary; injected detachers manage their own lifecycle.
func (p *Pipeline) Shutdown(context.Context) {
	if p == nil || p.boundary == nil {
		return
	}
	p.boundary.Wait()
}

func resolveConfig(ctx context.Context, runtime Config, options setupOptions) (Config, error) {
	defaults := core.DefaultConfig()
	loaded := defaults
	if options.configProvider != nil {
		cfg, err := options.configProvider.Load(ctx, defaults)
		if err != nil {
			return Config{}, fmt.Errorf("leads: load config: %w", err)
		}
		loaded = cfg
	}
	resolver := options.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, fmt.Errorf("leads: resolve config: %w", err)
	}
	return resolved, nil
}

func resolveStores(options setupOptions) (core.StoreProvider, error) {
	if options.stores != nil {
		return options.stores, nil
	}
	factory := options.storeFactory
	if factory == nil {
		factory = sqlstore.NewRepositoryFactory()
	}
	stores, err := factory.BuildStores(options.persistenceClient)
	if err != nil {
		return nil, fmt.Errorf("leads: build stores: %w", err)
	}
	return stores, nil
}

// resolveLookup picks the registry read path and the matching invalidator.
// Without a cache service reads hit the store directly and mutations have
// nothing to evict.
func resolveLookup(
	accounts core.AccountStore,
	options setupOptions,
) (registry.Lookup, command.AccountCacheInvalidator, error) {
	if options.cacheService == nil {
		return accounts, nil, nil
	}
	cached, err := registry.NewCachedLookup(accounts, options.cacheService)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached, nil
}

// resolveTenantAdmin surfaces tenant create/pause when the store provider
// carries the concrete SQL tenant store. The core contracts stay read-only
// for tenant identity, so the admin path is provider-specific on purpose.
func resolveTenantAdmin(stores core.StoreProvider) command.TenantAdmin {
	provider, ok := stores.(interface{ TenantStore() *sqlstore.TenantStore })
	if !ok {
		return nil
	}
	store := provider.TenantStore()
	if store == nil {
		return nil
	}
	return tenantAdmin{store: store}
}

type tenantAdmin struct {
	store *sqlstore.TenantStore
}

func (a tenantAdmin) CreateTenant(ctx context.Context, name string, webhookToken string, active bool) (core.Tenant, error) {
	return a.store.Create(ctx, sqlstore.CreateTenantInput{
		Name:         name,
		WebhookToken: webhookToken,
		Active:       active,
	})
}

func (a tenantAdmin) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	return a.store.SetActive(ctx, tenantID, active)
}
