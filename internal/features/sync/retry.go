package sync

import (
	"sync"

	"pos-billing/internal/remote"
)

// maxSyncAttempts bounds retries of a failed immediate sync before the item
// is journaled failed permanently.
const maxSyncAttempts = 3

type retryItem struct {
	Table     string
	Record    remote.Record
	Operation Operation
	Attempts  int
}

// retryQueue is the in-memory list of writes awaiting retry. Owned by the
// sync service, guarded by its own lock (finer-grained than the file store's).
type retryQueue struct {
	mu    sync.Mutex
	items []retryItem
}

func (q *retryQueue) push(item retryItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// drain removes and returns every queued item in FIFO order.
func (q *retryQueue) drain() []retryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *retryQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
