package conn

import "testing"

func TestQueuePushPopOrder(t *testing.T) {
	q := newPublishQueue(10)

	for _, id := range []uint32{1, 2, 3} {
		if !q.push(pendingPublish{sessionID: id}) {
			t.Fatalf("push(%d) = false, want true", id)
		}
	}
	if q.size() != 3 {
		t.Fatalf("size() = %d, want 3", q.size())
	}

	for _, want := range []uint32{1, 2, 3} {
		head, ok := q.pop()
		if !ok {
			t.Fatalf("pop() = _, false, want session %d", want)
		}
		if head.sessionID != want {
			t.Errorf("pop() session = %d, want %d", head.sessionID, want)
		}
	}

	if _, ok := q.pop(); ok {
		t.Error("pop() on empty queue = _, true, want false")
	}
}

func TestQueueBound(t *testing.T) {
	q := newPublishQueue(10)

	for i := 0; i < 10; i++ {
		if !q.push(pendingPublish{sessionID: uint32(i)}) {
			t.Fatalf("push %d rejected below capacity", i)
		}
	}
	if q.push(pendingPublish{sessionID: 10}) {
		t.Error("push at capacity = true, want false")
	}
	if q.size() != 10 {
		t.Errorf("size() = %d, want 10", q.size())
	}

	// Draining one slot makes room again.
	q.pop()
	if !q.push(pendingPublish{sessionID: 10}) {
		t.Error("push after pop = false, want true")
	}
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := newPublishQueue(10)
	q.push(pendingPublish{sessionID: 7})

	head, ok := q.peek()
	if !ok || head.sessionID != 7 {
		t.Fatalf("peek() = %v, %v, want session 7, true", head.sessionID, ok)
	}
	if q.size() != 1 {
		t.Errorf("size() after peek = %d, want 1", q.size())
	}
}

// A failed head moves to the back with its updated retry count so the
// remaining messages are not starved.
func TestQueueRequeueMovesHeadBack(t *testing.T) {
	q := newPublishQueue(10)
	q.push(pendingPublish{sessionID: 1})
	q.push(pendingPublish{sessionID: 2})

	head, _ := q.peek()
	head.retryCount++
	q.requeue(head)

	first, _ := q.pop()
	if first.sessionID != 2 {
		t.Errorf("head after requeue = session %d, want 2", first.sessionID)
	}
	second, _ := q.pop()
	if second.sessionID != 1 || second.retryCount != 1 {
		t.Errorf("requeued item = session %d retry %d, want session 1 retry 1",
			second.sessionID, second.retryCount)
	}
}

func TestQueueClear(t *testing.T) {
	q := newPublishQueue(10)
	q.push(pendingPublish{sessionID: 1})
	q.push(pendingPublish{sessionID: 2})

	q.clear()

	if q.size() != 0 {
		t.Errorf("size() after clear = %d, want 0", q.size())
	}
	if _, ok := q.peek(); ok {
		t.Error("peek() after clear = _, true, want false")
	}
}
