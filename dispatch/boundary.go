// Package dispatch is the ack-then-process boundary: webhook surfaces that
// must acknowledge quickly hand their batch to a detached unit of work whose
// failures are recorded, never surfaced to the delivering caller.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-leads/core"
)

// UnitOfWork is one detached batch. The context it receives is detached from
// the inbound request so the caller's disconnect cannot cancel processing.
type UnitOfWork func(ctx context.Context) error

type Detacher interface {
	Detach(ctx context.Context, name string, work UnitOfWork)
}

type Boundary struct {
	logger  core.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

type Option func(*Boundary)

func WithLogger(logger core.Logger) Option {
	return func(b *Boundary) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTimeout bounds each detached unit of work. Zero means no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Boundary) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

func New(opts ...Option) *Boundary {
	_, logger := glog.Resolve("leads.dispatch", nil, nil)
	boundary := &Boundary{
		logger:  logger,
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(boundary)
		}
	}
	return boundary
}

// Detach runs the unit of work on its own goroutine with a context that
// survives the inbound request. Panics and errors are logged; nothing
// propagates back to the acknowledged caller.
func (b *Boundary) Detach(ctx context.Context, name string, work UnitOfWork) {
	if b == nil || work == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		runCtx := detached
		cancel := func() {}
		if b.timeout > 0 {
			runCtx, cancel = context.WithTimeout(detached, b.timeout)
		}
		defer cancel()
		defer func() {
			if recovered := recover(); recovered != nil {
				b.logError(runCtx, name, fmt.Errorf("dispatch: panic in unit of work: %v", recovered))
			}
		}()
		startedAt := time.Now()
		if err := work(runCtx); err != nil {
			b.logError(runCtx, name, err)
			return
		}
		if b.logger != nil {
			b.logger.WithContext(runCtx).Debug("detached unit of work completed",
				"unit", name,
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
		}
	}()
}

// Wait blocks until every detached unit of work has finished. Shutdown and
// test hook.
func (b *Boundary) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

func (b *Boundary) logError(ctx context.Context, name string, err error) {
	if b == nil || b.logger == nil {
		return
	}
	b.logger.WithContext(ctx).Error("detached unit of work failed",
		"unit", name,
		"error", err.Error(),
	)
}

// SyncDetacher runs the unit of work inline. Used on paths that are
// synchronous by contract and in tests that need deterministic ordering.
type SyncDetacher struct{}

func (SyncDetacher) Detach(ctx context.Context, _ string, work UnitOfWork) {
	if work == nil {
		return
	}
	_ = work(context.WithoutCancel(ctx))
}

var _ Detacher = (*Boundary)(nil)
var _ Detacher = SyncDetacher{}
