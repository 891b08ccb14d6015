package uring

import (
	"os"
	"testing"
)

func TestMinimalRingReadRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "uring-read-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	want := []byte("hello uring")
	if _, err := f.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ring, err := NewRing(Config{Entries: 8})
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	defer ring.Close()

	buf := make([]byte, len(want))
	if err := ring.Prepare(int(f.Fd()), buf, 0, 1); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := ring.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var completions []Completion
	for len(completions) == 0 {
		batch, err := ring.WaitCompletion(0)
		if err != nil {
			t.Fatalf("WaitCompletion: %v", err)
		}
		completions = append(completions, batch...)
	}

	if len(completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(completions))
	}
	c := completions[0]
	if c.UserData != 1 {
		t.Fatalf("UserData = %d, want 1", c.UserData)
	}
	if c.Res != int32(len(want)) {
		t.Fatalf("Res = %d, want %d", c.Res, len(want))
	}
	if string(buf) != string(want) {
		t.Fatalf("buf = %q, want %q", buf, want)
	}
}

func TestRingPrepareBeyondCapacityDoesNotPanic(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "uring-full-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	f.Write([]byte("x"))

	ring, err := NewRing(Config{Entries: 1})
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	defer ring.Close()

	buf := make([]byte, 1)
	_ = ring.Prepare(int(f.Fd()), buf, 0, 1)
	// A second Prepare before Submit either queues (portable fallback,
	// unbounded) or returns ErrRingFull (minimal kernel ring, bounded SQ);
	// either is a valid Ring implementation, so only assert no panic.
	_ = ring.Prepare(int(f.Fd()), buf, 0, 2)
}
