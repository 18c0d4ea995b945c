package procmgr

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of processes the default cooperative
// scheduler admits at once.
const DefaultCapacity = 8

// Permit is a unit of admission. Release is idempotent.
type Permit interface {
	Release()
}

// Scheduler is the capability set the instance lifecycle runs on: admission,
// spawning, and supervision of the spawned process.
type Scheduler interface {
	// Name identifies the strategy in logs
	Name() string

	// Acquire obtains admission for one process
	Acquire(ctx context.Context) (Permit, error)

	// Start spawns the process and hands it to a supervisor
	Start(spec Spec, logger *slog.Logger, metrics MetricsCollector) (Supervisor, error)
}

type noopPermit struct{}

func (noopPermit) Release() {}

// BlockingScheduler admits every caller immediately and performs
// termination on the caller's goroutine.
type BlockingScheduler struct{}

// Blocking returns the blocking strategy
func Blocking() *BlockingScheduler {
	return &BlockingScheduler{}
}

func (*BlockingScheduler) Name() string {
	return "blocking"
}

func (*BlockingScheduler) Acquire(ctx context.Context) (Permit, error) {
	return noopPermit{}, nil
}

func (*BlockingScheduler) Start(spec Spec, logger *slog.Logger, metrics MetricsCollector) (Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := StartProcess(spec, logger)
	if err != nil {
		return nil, err
	}
	return newBlockingSupervisor(p, spec, logger, metrics), nil
}

// CooperativeScheduler bounds the number of live processes with a weighted
// semaphore and supervises each one from its own goroutine.
type CooperativeScheduler struct {
	sem      *semaphore.Weighted
	capacity int64
}

// Cooperative returns a cooperative strategy admitting at most capacity
// processes at once. Capacities below one are raised to one.
func Cooperative(capacity int64) *CooperativeScheduler {
	if capacity < 1 {
		capacity = 1
	}
	return &CooperativeScheduler{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

var defaultCooperative = sync.OnceValue(func() *CooperativeScheduler {
	return Cooperative(DefaultCapacity)
})

// DefaultCooperative returns the process-wide cooperative scheduler. All its
// users share one limiter.
func DefaultCooperative() *CooperativeScheduler {
	return defaultCooperative()
}

func (*CooperativeScheduler) Name() string {
	return "cooperative"
}

// Capacity returns the admission limit
func (c *CooperativeScheduler) Capacity() int64 {
	return c.capacity
}

// Acquire suspends the caller until a permit is free or ctx is done
func (c *CooperativeScheduler) Acquire(ctx context.Context) (Permit, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &semaphorePermit{sem: c.sem}, nil
}

func (c *CooperativeScheduler) Start(spec Spec, logger *slog.Logger, metrics MetricsCollector) (Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := StartProcess(spec, logger)
	if err != nil {
		return nil, err
	}
	return newCooperativeSupervisor(p, spec, logger, metrics), nil
}

type semaphorePermit struct {
	once sync.Once
	sem  *semaphore.Weighted
}

func (p *semaphorePermit) Release() {
	p.once.Do(func() { p.sem.Release(1) })
}

var (
	_ Scheduler = (*BlockingScheduler)(nil)
	_ Scheduler = (*CooperativeScheduler)(nil)
)
