package adapters_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/adapters/gocommand"
	"github.com/goliatone/go-leads/adapters/gojob"
	"github.com/goliatone/go-leads/adapters/gologger"
	leadscommand "github.com/goliatone/go-leads/command"
	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/dispatch"
	"github.com/goliatone/go-leads/inbound"
	leadsync "github.com/goliatone/go-leads/sync"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("leads", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	dispatcher, err := dispatch.NewQueueDispatcher(gojob.NewEnqueuerAdapter(enqueueProbe))
	if err != nil {
		t.Fatalf("queue dispatcher: %v", err)
	}
	body := []byte(`{"object":"page","entry":[]}`)
	if err := dispatcher.EnqueueWebhookBatch(ctx, "tenant-a", "metalead", "delivery-1", body); err != nil {
		t.Fatalf("enqueue webhook batch through gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != dispatch.JobIDWebhookProcess {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}
	if enqueueProbe.last.IdempotencyKey != "delivery-1" {
		t.Fatalf("expected delivery id as idempotency key, got %q", enqueueProbe.last.IdempotencyKey)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("leads.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_InboundSyncDispatchThroughCommandWrappers(t *testing.T) {
	syncer := &compatSyncer{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	syncSub, err := gocommand.RegisterAndSubscribe(adapter, leadscommand.NewSyncLeadsCommand(syncer))
	if err != nil {
		t.Fatalf("register sync wrapper: %v", err)
	}
	defer syncSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	dispatcher := inbound.NewDispatcher(inbound.NewInMemoryClaimStore())
	syncHandler := &dispatchingInboundHandler{
		surface: inbound.SurfaceSync,
		run: func(ctx context.Context, req core.InboundRequest) error {
			return gocommand.Dispatch(ctx, leadscommand.SyncLeadsMessage{
				TenantID: metadataString(req.Metadata, "tenant_id"),
				PageID:   metadataString(req.Metadata, "page_id"),
			})
		},
	}
	if err := dispatcher.Register("metalead", syncHandler); err != nil {
		t.Fatalf("register sync inbound handler: %v", err)
	}

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "metalead",
		Surface:    inbound.SurfaceSync,
		Metadata: map[string]any{
			"tenant_id": "tenant-a",
			"page_id":   "page-1",
		},
	})
	if err != nil {
		t.Fatalf("dispatch sync inbound request: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected sync inbound request accepted")
	}
	if syncer.calls != 1 || syncer.lastRequest.TenantID != "tenant-a" || syncer.lastRequest.PageID != "page-1" {
		t.Fatalf("expected sync wrapper invocation through inbound dispatch, got %+v", syncer.lastRequest)
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "leads.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type dispatchingInboundHandler struct {
	surface string
	run     func(ctx context.Context, req core.InboundRequest) error
}

func (h *dispatchingInboundHandler) Surface() string {
	return h.surface
}

func (h *dispatchingInboundHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.run == nil {
		return core.InboundResult{}, fmt.Errorf("handler is not configured")
	}
	if err := h.run(ctx, req); err != nil {
		return core.InboundResult{Accepted: false, StatusCode: 500}, err
	}
	return core.InboundResult{Accepted: true, StatusCode: 202}, nil
}

type compatSyncer struct {
	calls       int
	lastRequest leadsync.Request
}

func (s *compatSyncer) Sync(_ context.Context, req leadsync.Request) (leadsync.Result, error) {
	s.calls++
	s.lastRequest = req
	return leadsync.Result{LeadsSynced: 1}, nil
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, ok := metadata[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
