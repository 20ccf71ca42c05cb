package city

import "sync"

// MemoryQueue is an in-process ActionQueue used when the simulation runs
// without a shared-state store, and by tests. FIFO, drained as one batch.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []PendingAction
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Enqueue(a PendingAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, a)
	return nil
}

func (q *MemoryQueue) DrainAll() ([]PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out, nil
}
