package pgtemp

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// lazyFactory builds a factory on first use. Concurrent first callers share
// one construction; a failed construction is retried by the next caller.
type lazyFactory struct {
	build func(ctx context.Context) (*Factory, error)

	mu      sync.Mutex
	factory *Factory
	group   singleflight.Group
}

func (l *lazyFactory) get(ctx context.Context) (*Factory, error) {
	l.mu.Lock()
	f := l.factory
	l.mu.Unlock()
	if f != nil {
		return f, nil
	}

	v, err, _ := l.group.Do("factory", func() (interface{}, error) {
		l.mu.Lock()
		f := l.factory
		l.mu.Unlock()
		if f != nil {
			return f, nil
		}

		f, err := l.build(ctx)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.factory = f
		l.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Factory), nil
}

func defaultOptions() ([]Option, error) {
	settings, err := LoadSettings("")
	if err != nil {
		return nil, err
	}
	return []Option{WithSettings(settings)}, nil
}

var (
	defaultFactory = &lazyFactory{
		build: func(ctx context.Context) (*Factory, error) {
			opts, err := defaultOptions()
			if err != nil {
				return nil, err
			}
			return NewFactory(ctx, opts...)
		},
	}

	defaultBlockingFactory = &lazyFactory{
		build: func(ctx context.Context) (*Factory, error) {
			opts, err := defaultOptions()
			if err != nil {
				return nil, err
			}
			return NewFactory(ctx, append(opts, WithScheduler(procmgr.Blocking()))...)
		},
	}
)

// Default returns the process-wide factory, configured from PGTEMP_*
// environment variables and pgtemp.yaml. It is created on first use and
// lives until the process exits; its template is left for the OS to clean.
func Default(ctx context.Context) (*Factory, error) {
	return defaultFactory.get(ctx)
}

// NewDefaultInstance creates an instance from the process-wide factory
func NewDefaultInstance(ctx context.Context) (*Guard, error) {
	f, err := Default(ctx)
	if err != nil {
		return nil, err
	}
	return f.NewInstance(ctx)
}

// NewDefaultBlockingInstance creates an instance from a process-wide factory
// that always uses the blocking scheduler, independent of Default.
func NewDefaultBlockingInstance(ctx context.Context) (*Guard, error) {
	f, err := defaultBlockingFactory.get(ctx)
	if err != nil {
		return nil, err
	}
	return f.NewInstance(ctx)
}
