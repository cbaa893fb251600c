package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
)

// JobHandler processes one dequeued job message. Returning an error nacks the
// delivery under the worker's retry policy.
type JobHandler func(ctx context.Context, msg *core.JobExecutionMessage) error

// WorkerRetryPolicy bounds nack behavior so a poisoned message cannot loop
// forever. Zero values mean the corresponding bound is not enforced.
type WorkerRetryPolicy struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	DeadLetterOnMax bool
}

// Worker drains a job queue and routes each message by job id. It is the
// consuming half of QueueDispatcher: the dispatcher encodes detached work as
// queue messages and the worker decodes them back into pipeline calls.
type Worker struct {
	dequeuer core.JobDequeuer
	logger   core.Logger
	policy   WorkerRetryPolicy
	hook     core.JobWorkerHook

	mu       sync.Mutex
	handlers map[string]JobHandler
	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithWorkerRetryPolicy(policy WorkerRetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func NewWorker(dequeuer core.JobDequeuer, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("dispatch: job dequeuer is required")
	}
	_, logger := glog.Resolve("leads.worker", nil, nil)
	worker := &Worker{
		dequeuer: dequeuer,
		logger:   logger,
		policy: WorkerRetryPolicy{
			MaxAttempts:     5,
			RetryDelay:      30 * time.Second,
			DeadLetterOnMax: true,
		},
		handlers: map[string]JobHandler{},
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(worker)
		}
	}
	return worker, nil
}

// Handle registers the handler for a job id. Registration is rejected once a
// job id is taken so two components cannot silently race for the same queue
// traffic.
func (w *Worker) Handle(jobID string, handler JobHandler) error {
	if w == nil {
		return fmt.Errorf("dispatch: worker is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("dispatch: job id is required")
	}
	if handler == nil {
		return fmt.Errorf("dispatch: job handler is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.handlers[jobID]; exists {
		return fmt.Errorf("dispatch: job handler already registered for %q", jobID)
	}
	w.handlers[jobID] = handler
	return nil
}

// Run drains the queue until the context is canceled. Dequeue errors other
// than context cancellation are logged and the loop continues.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("dispatch: worker is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if w.logger != nil {
				w.logger.WithContext(ctx).Error("dequeue failed", "error", err.Error())
			}
			continue
		}
		if delivery == nil {
			continue
		}
		w.ProcessDelivery(ctx, delivery)
	}
}

// ProcessDelivery routes one delivery through its handler and settles it.
// Exposed so deployments that own the dequeue loop can reuse the routing and
// retry behavior.
func (w *Worker) ProcessDelivery(ctx context.Context, delivery core.JobDelivery) {
	if w == nil || delivery == nil {
		return
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		w.settleNack(ctx, delivery, msg, 0, core.JobNackOptions{
			DeadLetter: true,
			Reason:     "message has no job id",
		})
		return
	}

	handler := w.handlerFor(msg.JobID)
	if handler == nil {
		// No handler means redelivery cannot help. Park the message instead
		// of looping it.
		w.settleNack(ctx, delivery, msg, 0, core.JobNackOptions{
			DeadLetter: true,
			Reason:     fmt.Sprintf("no handler for job %q", msg.JobID),
		})
		return
	}

	attempt := w.nextAttempt(msg)
	startedAt := time.Now()
	w.emit(ctx, func(hook core.JobWorkerHook, event core.JobWorkerEvent) {
		hook.OnStart(ctx, event)
	}, msg, attempt, nil, startedAt, 0)

	err := handler(ctx, msg)
	duration := time.Since(startedAt)
	if err == nil {
		w.clearAttempts(msg)
		if ackErr := delivery.Ack(ctx); ackErr != nil && w.logger != nil {
			w.logger.WithContext(ctx).Error("ack failed",
				"job_id", msg.JobID,
				"error", ackErr.Error(),
			)
		}
		w.emit(ctx, func(hook core.JobWorkerHook, event core.JobWorkerEvent) {
			hook.OnSuccess(ctx, event)
		}, msg, attempt, nil, startedAt, duration)
		return
	}

	opts := core.JobNackOptions{
		Delay:   w.policy.RetryDelay,
		Requeue: true,
		Reason:  err.Error(),
	}
	exhausted := w.policy.MaxAttempts > 0 && attempt >= w.policy.MaxAttempts
	if exhausted {
		opts.Requeue = false
		opts.DeadLetter = w.policy.DeadLetterOnMax
		w.clearAttempts(msg)
	}
	w.settleNack(ctx, delivery, msg, attempt, opts)

	if exhausted {
		w.emit(ctx, func(hook core.JobWorkerHook, event core.JobWorkerEvent) {
			hook.OnFailure(ctx, event)
		}, msg, attempt, err, startedAt, duration)
		return
	}
	w.emit(ctx, func(hook core.JobWorkerHook, event core.JobWorkerEvent) {
		hook.OnRetry(ctx, event)
	}, msg, attempt, err, startedAt, duration)
}

func (w *Worker) handlerFor(jobID string) JobHandler {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handlers[strings.TrimSpace(jobID)]
}

// nextAttempt counts deliveries per retry key. Messages without an
// idempotency key fall back to the job id, which collapses distinct messages
// onto one counter but still bounds the loop.
func (w *Worker) nextAttempt(msg *core.JobExecutionMessage) int {
	key := attemptKey(msg)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) clearAttempts(msg *core.JobExecutionMessage) {
	key := attemptKey(msg)
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func (w *Worker) settleNack(
	ctx context.Context,
	delivery core.JobDelivery,
	msg *core.JobExecutionMessage,
	attempt int,
	opts core.JobNackOptions,
) {
	if err := delivery.Nack(ctx, opts); err != nil && w.logger != nil {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		w.logger.WithContext(ctx).Error("nack failed",
			"job_id", jobID,
			"attempt", attempt,
			"error", err.Error(),
		)
	}
}

func (w *Worker) emit(
	ctx context.Context,
	fire func(hook core.JobWorkerHook, event core.JobWorkerEvent),
	msg *core.JobExecutionMessage,
	attempt int,
	err error,
	startedAt time.Time,
	duration time.Duration,
) {
	if w.hook == nil {
		return
	}
	fire(w.hook, core.JobWorkerEvent{
		Message:   msg,
		Attempt:   attempt,
		Delay:     w.policy.RetryDelay,
		Err:       err,
		StartedAt: startedAt,
		Duration:  duration,
	})
}
