package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-leads/core"
)

func TestBoundaryDetachRunsWork(t *testing.T) {
	boundary := New()

	done := make(chan struct{})
	boundary.Detach(context.Background(), "test", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("detached work did not run")
	}
	boundary.Wait()
}

func TestBoundaryDetachSurvivesCallerCancel(t *testing.T) {
	boundary := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	var mu sync.Mutex
	boundary.Detach(ctx, "test", func(runCtx context.Context) error {
		mu.Lock()
		ctxErr = runCtx.Err()
		mu.Unlock()
		return nil
	})
	boundary.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ctxErr != nil {
		t.Fatalf("expected detached context unaffected by caller cancel, got %v", ctxErr)
	}
}

func TestBoundaryDetachAbsorbsPanicAndError(t *testing.T) {
	boundary := New()

	boundary.Detach(context.Background(), "panics", func(context.Context) error {
		panic("boom")
	})
	boundary.Detach(context.Background(), "errors", func(context.Context) error {
		return errors.New("unit failed")
	})
	// Wait returning at all proves neither the panic nor the error escaped.
	boundary.Wait()
}

func TestSyncDetacherRunsInline(t *testing.T) {
	ran := false
	SyncDetacher{}.Detach(context.Background(), "inline", func(context.Context) error {
		ran = true
		return nil
	})
	if !ran {
		t.Fatal("expected inline execution")
	}
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*core.JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	return nil
}

func TestQueueDispatcherWebhookBatchRoundTrip(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	dispatcher, err := NewQueueDispatcher(enqueuer)
	if err != nil {
		t.Fatalf("NewQueueDispatcher returned error: %v", err)
	}

	body := []byte(`{"object":"page","entry":[]}`)
	if err := dispatcher.EnqueueWebhookBatch(context.Background(), "tenant-a", "metalead", "delivery-1", body); err != nil {
		t.Fatalf("EnqueueWebhookBatch returned error: %v", err)
	}

	enqueuer.mu.Lock()
	if len(enqueuer.messages) != 1 {
		enqueuer.mu.Unlock()
		t.Fatalf("expected one enqueued message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	enqueuer.mu.Unlock()

	if msg.JobID != JobIDWebhookProcess {
		t.Fatalf("expected job id %s, got %s", JobIDWebhookProcess, msg.JobID)
	}
	if msg.IdempotencyKey != "delivery-1" {
		t.Fatalf("expected delivery id as idempotency key, got %q", msg.IdempotencyKey)
	}

	tenantID, providerID, deliveryID, decoded, err := DecodeWebhookBatch(msg)
	if err != nil {
		t.Fatalf("DecodeWebhookBatch returned error: %v", err)
	}
	if tenantID != "tenant-a" || providerID != "metalead" || deliveryID != "delivery-1" {
		t.Fatalf("unexpected identifiers: %s %s %s", tenantID, providerID, deliveryID)
	}
	if string(decoded) != string(body) {
		t.Fatalf("body did not round-trip: %q", decoded)
	}
}

func TestQueueDispatcherValidatesInput(t *testing.T) {
	if _, err := NewQueueDispatcher(nil); err == nil {
		t.Fatal("expected error for nil enqueuer")
	}
	dispatcher, _ := NewQueueDispatcher(&captureEnqueuer{})
	if err := dispatcher.EnqueueWebhookBatch(context.Background(), "tenant-a", "", "delivery-1", nil); err == nil {
		t.Fatal("expected error for missing provider id")
	}
	if err := dispatcher.EnqueueManualSync(context.Background(), "", "", time.Time{}, time.Time{}); err == nil {
		t.Fatal("expected error for missing tenant id")
	}
}

func TestDecodeWebhookBatchRejectsForeignMessage(t *testing.T) {
	if _, _, _, _, err := DecodeWebhookBatch(&core.JobExecutionMessage{JobID: "other"}); err == nil {
		t.Fatal("expected error for foreign job id")
	}
}
