package filelock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLockAcquireRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "root.lock")

	fl := NewFileLock(lockPath)
	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestTryLockContention(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "root.lock")

	first := NewFileLock(lockPath)
	acquired, err := first.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !acquired {
		t.Fatal("first TryLock should succeed")
	}
	defer first.Unlock()

	// flock is per file handle, so a second FileLock on the same path
	// simulates a second process.
	second := NewFileLock(lockPath)
	acquired, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if acquired {
		t.Error("second TryLock should report the lock as held")
	}
}

func TestTryLockAfterRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "root.lock")

	first := NewFileLock(lockPath)
	if _, err := first.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	second := NewFileLock(lockPath)
	acquired, err := second.TryLock()
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	if !acquired {
		t.Error("lock should be free after release")
	}
	second.Unlock()
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tree.json")

	if err := AtomicWrite(path, []byte(`{"root":{}}`), 0644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"root":{}}` {
		t.Errorf("content = %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("perm = %o, want 644", info.Mode().Perm())
	}
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")

	if err := AtomicWrite(path, []byte("old"), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, []byte("new"), 0600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("content = %q, want new", data)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir entries = %d, want just the target", len(entries))
	}
}
