package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// ErrPoolClosed is returned when acquiring from a closed pool.
var ErrPoolClosed = errors.New("session pool is closed")

// Pool bounds the number of sessions of one model and lends them to
// concurrent callers. Sessions are created lazily and reused, so their
// arenas stay warm across requests.
type Pool struct {
	model *Model
	size  int
	sem   *semaphore.Weighted

	mu     sync.Mutex
	idle   []*Session
	all    []*Session
	closed bool
}

func newPool(m *Model, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		model: m,
		size:  size,
		sem:   semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the maximum number of sessions.
func (p *Pool) Size() int { return p.size }

// Acquire blocks until a session is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return s, nil
	}
	s := p.model.NewSession()
	p.all = append(p.all, s)
	p.model.logger.Debug("session created", "session", s.ID().String(), "sessions", len(p.all))
	return s, nil
}

// Release returns a session obtained from Acquire.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	if !p.closed {
		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

// Run executes the model on a pooled session.
func (p *Pool) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (*Outputs, error) {
	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(s)
	return s.Run(ctx, inputs)
}

// RunBatch runs every input set, at most Size at a time, and returns the
// results in input order. The first failure cancels the remaining runs.
func (p *Pool) RunBatch(ctx context.Context, batch []map[string]*tensor.Tensor) ([]*Outputs, error) {
	results := make([]*Outputs, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, inputs := range batch {
		g.Go(func() error {
			out, err := p.Run(gctx, inputs)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close closes every session. Sessions still lent out are closed as well;
// their current runs finish first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	all := p.all
	p.all, p.idle = nil, nil
	p.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
