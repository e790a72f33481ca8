package memory

import (
	"strings"

	"github.com/emirpasic/gods/v2/sets/hashset"
	"github.com/emirpasic/gods/v2/stacks/arraystack"
)

// RootContext is the context active when no operator is executing.
const RootContext = "<root>"

// contextStack maintains the current operator context path.
type contextStack struct {
	saved    *arraystack.Stack[string]
	current  string
	declared *hashset.Set[string]
}

func newContextStack() *contextStack {
	return &contextStack{
		saved:    arraystack.New[string](),
		current:  RootContext,
		declared: hashset.New(RootContext),
	}
}

// qualify joins name onto the current path.
func (s *contextStack) qualify(name string) string {
	if s.current == RootContext {
		return name
	}
	return s.current + "." + name
}

func (s *contextStack) push(name string) {
	s.saved.Push(s.current)
	s.current = s.qualify(name)
}

func (s *contextStack) pop() bool {
	prev, ok := s.saved.Pop()
	if !ok {
		return false
	}
	s.current = prev
	return true
}

func (s *contextStack) depth() int {
	return s.saved.Size()
}

// within reports whether path equals scope or is nested below it.
func within(path, scope string) bool {
	if scope == RootContext {
		return true
	}
	return path == scope || strings.HasPrefix(path, scope+".")
}
