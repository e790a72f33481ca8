package memory

import "fmt"

// InvariantError reports misuse of the arena by its caller, such as an Exit
// at the root context. The arena panics with it; it is never returned.
type InvariantError struct {
	Op      string
	Context string
	Reason  string
}

func (e *InvariantError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("memory: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("memory: %s in context %q: %s", e.Op, e.Context, e.Reason)
}
