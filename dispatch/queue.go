package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leads/core"
)

const (
	// JobIDWebhookProcess is the queued form of the detached webhook batch.
	JobIDWebhookProcess = "leads.webhook.process"
	// JobIDManualSync is the queued form of an operator-triggered sync.
	JobIDManualSync = "leads.sync.manual"
)

// QueueDispatcher pushes detached work onto a durable queue instead of an
// in-process goroutine. Deployments running a worker pool use this path so a
// crash between ack and processing cannot lose the batch.
type QueueDispatcher struct {
	enqueuer core.JobEnqueuer
}

func NewQueueDispatcher(enqueuer core.JobEnqueuer) (*QueueDispatcher, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("dispatch: job enqueuer is required")
	}
	return &QueueDispatcher{enqueuer: enqueuer}, nil
}

// EnqueueWebhookBatch stores the raw delivery for a worker to process. The
// delivery id doubles as the idempotency key so queue-level redelivery
// collapses with webhook-level redelivery.
func (d *QueueDispatcher) EnqueueWebhookBatch(
	ctx context.Context,
	tenantID string,
	providerID string,
	deliveryID string,
	body []byte,
) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("dispatch: queue dispatcher is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return fmt.Errorf("dispatch: provider id and delivery id are required")
	}
	return d.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: JobIDWebhookProcess,
		Parameters: map[string]any{
			"tenant_id":   tenantID,
			"provider_id": providerID,
			"delivery_id": deliveryID,
			"body":        base64.StdEncoding.EncodeToString(body),
		},
		IdempotencyKey: deliveryID,
		DedupPolicy:    "drop",
	})
}

func (d *QueueDispatcher) EnqueueManualSync(
	ctx context.Context,
	tenantID string,
	pageID string,
	startDate time.Time,
	endDate time.Time,
) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("dispatch: queue dispatcher is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("dispatch: tenant id is required")
	}
	params := map[string]any{
		"tenant_id": tenantID,
	}
	if strings.TrimSpace(pageID) != "" {
		params["page_id"] = strings.TrimSpace(pageID)
	}
	if !startDate.IsZero() {
		params["start_date"] = startDate.UTC().Format(time.RFC3339)
	}
	if !endDate.IsZero() {
		params["end_date"] = endDate.UTC().Format(time.RFC3339)
	}
	return d.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:      JobIDManualSync,
		Parameters: params,
	})
}

// DecodeWebhookBatch reverses EnqueueWebhookBatch for queue workers.
func DecodeWebhookBatch(msg *core.JobExecutionMessage) (tenantID, providerID, deliveryID string, body []byte, err error) {
	if msg == nil || msg.JobID != JobIDWebhookProcess {
		return "", "", "", nil, fmt.Errorf("dispatch: message is not a webhook batch")
	}
	tenantID, _ = msg.Parameters["tenant_id"].(string)
	providerID, _ = msg.Parameters["provider_id"].(string)
	deliveryID, _ = msg.Parameters["delivery_id"].(string)
	encoded, _ := msg.Parameters["body"].(string)
	if strings.TrimSpace(providerID) == "" || strings.TrimSpace(deliveryID) == "" {
		return "", "", "", nil, fmt.Errorf("dispatch: webhook batch message is missing identifiers")
	}
	body, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("dispatch: decode webhook batch body: %w", err)
	}
	return tenantID, providerID, deliveryID, body, nil
}
