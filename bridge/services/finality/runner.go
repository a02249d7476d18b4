/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"context"
	"sync"
	"time"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sourcegraph/conc/pool"
)

var logger = logging.MustGetLogger("finality")

const changesBuffer = 128

// RunnerOpts configures a Runner
type RunnerOpts[T any] struct {
	// Name identifies the service in logs and metrics
	Name string
	// Tables are the tables whose changes trigger a sweep
	Tables   []string
	Notifier driver.Notifier
	// Load returns the operations the service owns
	Load func(ctx context.Context) ([]T, error)
	// ID returns the key of an operation
	ID func(T) string
	// Process advances one operation
	Process      func(ctx context.Context, op T) error
	PollInterval time.Duration
	Parallelism  int
	Metrics      *Metrics
}

// Runner sweeps the operations of a service when the observed tables change and periodically.
// An operation is processed by at most one goroutine at a time.
type Runner[T any] struct {
	opts RunnerOpts[T]

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewRunner[T any](opts RunnerOpts[T]) *Runner[T] {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil, opts.Name)
	}
	return &Runner[T]{opts: opts, inFlight: map[string]struct{}{}}
}

// Run sweeps until ctx is done
func (r *Runner[T]) Run(ctx context.Context) error {
	var changes <-chan driver.Change
	if r.opts.Notifier != nil {
		ch, cancel := r.opts.Notifier.Subscribe(changesBuffer)
		defer cancel()
		changes = ch
	}
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	logger.Infof("[%s] started", r.opts.Name)
	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[%s] stopped", r.opts.Name)
			return nil
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if r.watches(c.Table) {
				r.drain(changes)
				r.Sweep(ctx)
			}
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// drain discards the changes already queued, the next sweep covers them
func (r *Runner[T]) drain(changes <-chan driver.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (r *Runner[T]) watches(table string) bool {
	for _, t := range r.opts.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Sweep processes all the operations the service owns and waits for them
func (r *Runner[T]) Sweep(ctx context.Context) {
	ops, err := r.opts.Load(ctx)
	if err != nil {
		logger.Errorf("[%s] failed loading operations: %s", r.opts.Name, err)
		return
	}
	if len(ops) == 0 {
		return
	}
	logger.Debugf("[%s] sweeping [%d] operations", r.opts.Name, len(ops))

	p := pool.New().WithMaxGoroutines(r.opts.Parallelism).WithContext(ctx)
	for _, op := range ops {
		id := r.opts.ID(op)
		if !r.acquire(id) {
			logger.Debugf("[%s] operation [%s] already in flight", r.opts.Name, id)
			continue
		}
		p.Go(func(ctx context.Context) error {
			defer r.release(id)
			r.process(ctx, id, op)
			return nil
		})
	}
	_ = p.Wait()
}

func (r *Runner[T]) process(ctx context.Context, id string, op T) {
	err := r.opts.Process(ctx, op)
	switch {
	case err == nil:
	case IsSilent(err):
		logger.Debugf("[%s] operation [%s]: %s", r.opts.Name, id, err)
	default:
		r.opts.Metrics.Failures.Add(1)
		logger.Errorf("[%s] failed processing operation [%s]: %s", r.opts.Name, id, err)
	}
}

func (r *Runner[T]) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[id]; ok {
		return false
	}
	r.inFlight[id] = struct{}{}
	r.opts.Metrics.InFlight.Set(float64(len(r.inFlight)))
	return true
}

func (r *Runner[T]) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
	r.opts.Metrics.InFlight.Set(float64(len(r.inFlight)))
}
