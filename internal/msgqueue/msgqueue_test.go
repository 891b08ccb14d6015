package msgqueue

import (
	"testing"
	"time"

	"github.com/vanerun/ukern/internal/constants"
)

func TestSendReceiveFIFO(t *testing.T) {
	q := NewQueue(4)
	for _, m := range []uint64{1, 2, 3} {
		if err := q.SendMessage(m, constants.MaxTime); err != nil {
			t.Fatalf("SendMessage(%d): %v", m, err)
		}
	}

	for _, want := range []uint64{1, 2, 3} {
		got, err := q.ReceiveMessage(constants.MaxTime)
		if err != nil {
			t.Fatalf("ReceiveMessage: %v", err)
		}
		if got != want {
			t.Errorf("ReceiveMessage() = %d, want %d", got, want)
		}
	}
}

func TestJamMessageJumpsFIFO(t *testing.T) {
	q := NewQueue(4)
	q.SendMessage(1, constants.MaxTime)
	q.SendMessage(2, constants.MaxTime)
	q.JamMessage(99, constants.MaxTime)

	got, _ := q.ReceiveMessage(constants.MaxTime)
	if got != 99 {
		t.Errorf("expected jammed message first, got %d", got)
	}
	got, _ = q.ReceiveMessage(constants.MaxTime)
	if got != 1 {
		t.Errorf("expected original FIFO order to resume, got %d", got)
	}
}

func TestTryVariantsNeverBlock(t *testing.T) {
	q := NewQueue(1)
	if !q.TrySendMessage(5) {
		t.Fatal("expected TrySendMessage to succeed on empty queue")
	}
	if q.TrySendMessage(6) {
		t.Error("expected TrySendMessage to fail on full queue")
	}

	v, ok := q.TryPeekMessage()
	if !ok || v != 5 {
		t.Errorf("TryPeekMessage() = %d, %v, want 5, true", v, ok)
	}
	if q.Len() != 1 {
		t.Error("TryPeekMessage must not dequeue")
	}

	v, ok = q.TryReceiveMessage()
	if !ok || v != 5 {
		t.Errorf("TryReceiveMessage() = %d, %v, want 5, true", v, ok)
	}
	if _, ok := q.TryReceiveMessage(); ok {
		t.Error("expected TryReceiveMessage to fail on empty queue")
	}
}

func TestSendBlocksUntilRoom(t *testing.T) {
	q := NewQueue(1)
	q.SendMessage(1, constants.MaxTime)

	done := make(chan error, 1)
	go func() {
		done <- q.SendMessage(2, constants.MaxTime)
	}()

	select {
	case <-done:
		t.Fatal("SendMessage should have blocked on a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.ReceiveMessage(constants.MaxTime)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendMessage never unblocked after room freed")
	}
}

func TestReceiveTimesOut(t *testing.T) {
	q := NewQueue(1)
	_, err := q.ReceiveMessage(10 * time.Millisecond)
	if err == nil {
		t.Fatal("expected ReceiveMessage to time out on an empty queue")
	}
}

func TestSendTimesOutWhenFull(t *testing.T) {
	q := NewQueue(1)
	q.SendMessage(1, constants.MaxTime)
	err := q.SendMessage(2, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected SendMessage to time out on a full queue")
	}
}

func TestSendWakesOneOfSeveralWaiters(t *testing.T) {
	q := NewQueue(1)

	results := make(chan uint64, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, err := q.ReceiveMessage(time.Second)
			if err != nil {
				results <- 0
				return
			}
			results <- v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.SendMessage(42, constants.MaxTime)

	select {
	case v := <-results:
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no receiver woke up")
	}
}
