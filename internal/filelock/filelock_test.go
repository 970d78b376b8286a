package filelock

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLockCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", ".lock")
	unlock, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestLockSerializesHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	unlock, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	var (
		mu       sync.Mutex
		acquired bool
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err := Lock(path)
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		mu.Lock()
		acquired = true
		mu.Unlock()
		_ = second()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	early := acquired
	mu.Unlock()
	if early {
		t.Fatal("second holder acquired the lock while the first still held it")
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	wg.Wait()
	if !acquired {
		t.Fatal("second holder never acquired the lock")
	}
}

func TestTryLockFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	unlock, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := TryLock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock error = %v, want ErrLocked", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	again, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	_ = again()
}
