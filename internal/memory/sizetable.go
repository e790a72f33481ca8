package memory

import (
	"slices"

	"github.com/eapache/queue"
)

const initialSizeClasses = 1

// partition maps a context path to its FIFO queue of containers.
type partition map[string]*queue.Queue

// sizeTable tracks the distinct buffer lengths seen for one element type.
//
// Slots [0, n) are live size classes ordered by probe priority; slots
// [n, cap) are reserved capacity. The backing arrays double when full.
type sizeTable struct {
	n      int
	sizes  []int
	usage  []int
	used   []partition
	unused []partition
}

func newSizeTable() *sizeTable {
	return &sizeTable{
		sizes:  make([]int, initialSizeClasses),
		usage:  make([]int, initialSizeClasses),
		used:   make([]partition, initialSizeClasses),
		unused: make([]partition, initialSizeClasses),
	}
}

// index probes live size classes in priority order.
func (t *sizeTable) index(size int) int {
	for i := 0; i < t.n; i++ {
		if t.sizes[i] == size {
			return i
		}
	}
	return -1
}

// add registers a new size class with queues for every known context.
func (t *sizeTable) add(size int, contexts []string) int {
	if t.n == len(t.sizes) {
		t.grow()
	}
	i := t.n
	t.n++
	t.sizes[i] = size
	t.usage[i] = 0
	t.used[i] = make(partition, len(contexts))
	t.unused[i] = make(partition, len(contexts))
	for _, ctx := range contexts {
		t.used[i][ctx] = queue.New()
		t.unused[i][ctx] = queue.New()
	}
	return i
}

func (t *sizeTable) grow() {
	capacity := len(t.sizes) * 2
	t.sizes = append(t.sizes, make([]int, capacity-len(t.sizes))...)
	t.usage = append(t.usage, make([]int, capacity-len(t.usage))...)
	t.used = append(t.used, make([]partition, capacity-len(t.used))...)
	t.unused = append(t.unused, make([]partition, capacity-len(t.unused))...)
}

// ensure creates empty queues for ctx in every live size class.
func (t *sizeTable) ensure(ctx string) {
	for i := 0; i < t.n; i++ {
		if _, ok := t.used[i][ctx]; !ok {
			t.used[i][ctx] = queue.New()
		}
		if _, ok := t.unused[i][ctx]; !ok {
			t.unused[i][ctx] = queue.New()
		}
	}
}

// rebalance orders live size classes by descending usage and halves every
// counter. Ties keep their current order.
func (t *sizeTable) rebalance() bool {
	order := make([]int, t.n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return t.usage[b] - t.usage[a]
	})

	changed := false
	for i, j := range order {
		if i != j {
			changed = true
			break
		}
	}

	if changed {
		sizes := make([]int, len(t.sizes))
		usage := make([]int, len(t.usage))
		used := make([]partition, len(t.used))
		unused := make([]partition, len(t.unused))
		for i, j := range order {
			sizes[i] = t.sizes[j]
			usage[i] = t.usage[j]
			used[i] = t.used[j]
			unused[i] = t.unused[j]
		}
		t.sizes, t.usage, t.used, t.unused = sizes, usage, used, unused
	}

	for i := range t.usage {
		t.usage[i] /= 2
	}
	return changed
}

// drain removes every element of q, calling keep for each one; elements for
// which keep returns true are re-queued in their original order.
func drain(q *queue.Queue, keep func(c *Container) bool) {
	for n := q.Length(); n > 0; n-- {
		c := q.Remove().(*Container)
		if keep(c) {
			q.Add(c)
		}
	}
}
