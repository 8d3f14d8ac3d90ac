package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l := New(path)

	ok, err := l.TryAcquire("manual")
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	before, _ := os.ReadFile(path)

	// Same Lock, then a second Lock on the same file.
	for _, other := range []*Lock{l, New(path)} {
		ok, err := other.TryAcquire("scheduled")
		if err != nil || ok {
			t.Fatalf("second acquire = %v, %v", ok, err)
		}
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("failed acquire modified the lock file")
	}

	h, err := l.Holder()
	if err != nil || h.PID != os.Getpid() || h.Trigger != "manual" {
		t.Fatalf("Holder = %+v, %v", h, err)
	}
}

func TestLock_ReleaseThenReacquire(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nested", "run.lock"))
	if ok, _ := l.TryAcquire("a"); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if l.Held() {
		t.Fatal("still held after release")
	}
	if ok, _ := l.TryAcquire("b"); !ok {
		t.Fatal("reacquire failed")
	}
}

func TestLock_ReleaseNotHeld(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "run.lock"))
	if err := l.Release(); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("err = %v", err)
	}
}

func TestLock_StaleFileStaysHeld(t *testing.T) {
	// WHAT: a marker left by a dead process keeps blocking.
	// WHY: clearing it is an operator decision; guessing liveness could
	// let two runs overlap.
	path := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(path, []byte(`{"pid":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if ok, err := l.TryAcquire("scheduled"); ok || err != nil {
		t.Fatalf("acquire over stale lock = %v, %v", ok, err)
	}
	if err := l.Release(); !errors.Is(err, ErrNotHeld) {
		t.Fatal("released a lock it did not hold")
	}
	if !l.Held() {
		t.Fatal("stale lock removed")
	}
}
