package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

var (
	// ErrSessionClosed is returned by Run after Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrMissingInput is returned when a declared graph input is not supplied.
	ErrMissingInput = errors.New("missing input")
	// ErrUnknownInput is returned for inputs the graph does not declare.
	ErrUnknownInput = errors.New("unknown input")
	// ErrInputType is returned when an input's element type differs from its declaration.
	ErrInputType = errors.New("input type mismatch")
)

// Outputs holds graph outputs in declared order.
type Outputs = orderedmap.OrderedMap[string, *tensor.Tensor]

// Session executes one model with its own arena. A session is not safe for
// concurrent use; Pool hands out sessions to concurrent callers.
type Session struct {
	id     uuid.UUID
	model  *Model
	arena  *memory.Arena
	exec   *executor
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	runs   int
}

// NewSession creates a session with a fresh arena that knows every context
// the model can enter.
func (m *Model) NewSession() *Session {
	id := uuid.New()
	logger := m.logger.With("session", id.String())
	arena := memory.NewArena(memory.WithHost(m.opts.Host), memory.WithLogger(logger))
	arena.RegisterContexts(m.contexts...)
	return &Session{
		id:     id,
		model:  m,
		arena:  arena,
		exec:   &executor{logger: logger},
		logger: logger,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Arena exposes the session arena for inspection.
func (s *Session) Arena() *memory.Arena { return s.arena }

// Run executes the main graph. Returned tensors belong to the caller and stay
// valid across later runs.
func (s *Session) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (*Outputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	g := s.model.main
	bound, err := bindInputs(g, inputs)
	if err != nil {
		return nil, err
	}

	s.runs++
	s.logger.Debug("run started", "run", s.runs, "inputs", len(bound))

	// Outputs are handed over and the pools rebalanced on every path.
	defer s.arena.ReleaseGraphOutputs()

	out, err := s.run(ctx, g, bound)
	if err != nil {
		s.logger.Debug("run failed", "run", s.runs, "error", err)
		return nil, err
	}

	result := orderedmap.New[string, *tensor.Tensor](len(out))
	for i, name := range g.outputs {
		result.Set(name, out[i].Rename(name))
	}
	s.logger.Debug("run finished", "run", s.runs, "stats", s.arena.Stats())
	return result, nil
}

// run enters the graph context, executes g and flags its outputs as global
// outputs before the context is left.
func (s *Session) run(ctx context.Context, g *graph, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	s.arena.Enter(s.model.contextName)
	defer s.arena.Exit()

	opCtx := &operators.Context{
		Ctx:      ctx,
		Arena:    s.arena,
		Runner:   s.exec,
		Logger:   s.logger,
		Parallel: s.model.opts.Parallel,
	}
	out, err := s.exec.run(opCtx, g, inputs)
	if err != nil {
		return nil, err
	}

	for i, t := range out {
		// Initializers, caller inputs and strings are not pooled: copy them
		// so callers never share storage with the model.
		if t.Container() == nil || !t.Container().Pooled() {
			c, err := t.Clone(nil)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", g.outputs[i], err)
			}
			out[i] = c
			continue
		}
		s.arena.MarkGlobalOutput(t.Container())
	}
	return out, nil
}

// bindInputs orders the supplied inputs by declaration and checks types.
func bindInputs(g *graph, inputs map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	for name := range inputs {
		if !slices.Contains(g.inputs, name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInput, name)
		}
	}
	bound := make([]*tensor.Tensor, len(g.inputs))
	for i, name := range g.inputs {
		t, ok := inputs[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, name)
		}
		if want, ok := g.inputTypes[i]; ok && t.DType() != want {
			return nil, fmt.Errorf("%w: %q is %s, expected %s", ErrInputType, name, t.DType(), want)
		}
		bound[i] = t
	}
	return bound, nil
}

// Close releases every pooled buffer. Tensors already returned by Run stay valid.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.arena.Close()
	s.logger.Debug("session closed", "runs", s.runs)
}
