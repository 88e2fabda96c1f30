package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/logging"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// DefaultAcquireTimeout bounds Acquire when the context has no deadline.
const DefaultAcquireTimeout = 5 * time.Second

// Pool hands out independent hosts. A host that has run a job carries its
// module cache and global mutations, so it is never reused: Release closes
// it and puts a fresh one in its place.
type Pool struct {
	config Config
	logger *logging.Logger
	hosts  chan *Host
	size   int
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool of size hosts
func NewPool(config Config, size int, logger *logging.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	pool := &Pool{
		config: config,
		logger: logger,
		hosts:  make(chan *Host, size),
		size:   size,
	}

	for i := 0; i < size; i++ {
		host, err := NewHost(config, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.hosts <- host
	}

	return pool, nil
}

// Acquire takes a host from the pool
func (p *Pool) Acquire(ctx context.Context) (*Host, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(DefaultAcquireTimeout)
	defer timer.Stop()

	select {
	case host, ok := <-p.hosts:
		if !ok {
			return nil, ErrPoolClosed
		}
		return host, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release retires a used host and refills its slot
func (p *Pool) Release(host *Host) error {
	if err := host.Close(); err != nil {
		p.logger.Warn("Failed to close sandbox host", zap.Error(err))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil
	}

	fresh, err := NewHost(p.config, p.logger)
	if err != nil {
		return err
	}

	select {
	case p.hosts <- fresh:
		return nil
	default:
		return fresh.Close()
	}
}

// Execute runs fn with a pooled host
func (p *Pool) Execute(ctx context.Context, fn func(ctx context.Context, host *Host) error) error {
	host, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Release(host); err != nil {
			p.logger.Error("Failed to refill sandbox pool", zap.Error(err))
		}
	}()

	return fn(ctx, host)
}

// Close closes the pool and all idle hosts
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.hosts)

	for host := range p.hosts {
		host.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.hosts),
		"in_use":    p.size - len(p.hosts),
		"closed":    p.closed,
	}
}
