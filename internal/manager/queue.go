package manager

import "sync"

// queue is an ordered unbounded event buffer drained by a single goroutine
// into an unbuffered channel. Producers never wait for the consumer.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []Event
	closed  bool
	backlog int // progress events are dropped at or above this length
	dropped int
}

func newQueue(backlog int) *queue {
	q := &queue{backlog: backlog}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if _, ok := e.(DownloadProgress); ok && q.backlog > 0 && len(q.items) >= q.backlog {
		q.dropped++
		return
	}
	q.items = append(q.items, e)
	q.cond.Signal()
}

// close stops accepting events; queued events are still delivered.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *queue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// run delivers queued events to out in order and closes out once the queue
// is closed and empty.
func (q *queue) run(out chan<- Event) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(out)
			return
		}
		e := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		out <- e
	}
}
