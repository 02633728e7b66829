package conn

import "sync"

// pendingPublish is one not-yet-acknowledged outbound message. Created when
// a publish is attempted while disconnected or when a live attempt fails;
// destroyed when sent or when retryCount reaches the retry ceiling.
type pendingPublish struct {
	sessionID  uint32
	topic      string
	payload    []byte
	retryCount int
}

// publishQueue is a bounded FIFO of pending publishes, owned by the MQTT
// manager and drained opportunistically while connected.
//
// FIFO order defines retry order, but a failed retry is re-enqueued at the
// back (see requeue) so one poisoned message cannot block all others;
// ordering is therefore not strictly preserved across retries.
type publishQueue struct {
	mu       sync.Mutex
	items    []pendingPublish
	capacity int
}

func newPublishQueue(capacity int) *publishQueue {
	return &publishQueue{capacity: capacity}
}

// push appends an item. It reports false when the queue is at capacity;
// the caller is responsible for surfacing the rejection.
func (q *publishQueue) push(p pendingPublish) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, p)
	return true
}

// peek returns a copy of the head item without removing it.
func (q *publishQueue) peek() (pendingPublish, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pendingPublish{}, false
	}
	return q.items[0], true
}

// pop removes and returns the head item.
func (q *publishQueue) pop() (pendingPublish, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pendingPublish{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// requeue removes the head and appends the updated copy at the back.
func (q *publishQueue) requeue(updated pendingPublish) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return
	}
	q.items = append(q.items[1:], updated)
}

// size returns the number of pending publishes.
func (q *publishQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// clear discards every pending publish.
func (q *publishQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
