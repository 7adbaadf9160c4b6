package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweep_DeletesScheduledFiles(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.jpg")
	b := touch(t, dir, "b.mp4")

	s := NewScheduler(time.Minute)
	s.Schedule(a, ReasonCompleted)
	s.Schedule(b, ReasonUnrecoverable)

	if got := s.Sweep(); got != 2 {
		t.Fatalf("Sweep() = %d, want 2", got)
	}
	for _, path := range []string{a, b} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still exists", path)
		}
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after sweep", s.PendingCount())
	}
}

// Deleting a path that no longer exists counts as success.
func TestSweep_MissingFileIsSuccess(t *testing.T) {
	s := NewScheduler(time.Minute)
	s.Schedule(filepath.Join(t.TempDir(), "already-gone.jpg"), ReasonCompleted)

	if got := s.Sweep(); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", s.PendingCount())
	}
}

func TestSchedule_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "a.jpg")

	var mu sync.Mutex
	var reasons []Reason
	s := NewScheduler(time.Minute, WithOnCleaned(func(_ string, reason Reason) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}))

	s.Schedule(path, ReasonCompleted)
	s.Schedule(path, ReasonMaxRetries)
	s.Schedule(path, ReasonUnrecoverable)

	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", s.PendingCount())
	}
	if got := s.Sweep(); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != ReasonCompleted {
		t.Errorf("reasons = %v, want the first schedule's reason", reasons)
	}
}

func TestSchedule_EmptyPathIgnored(t *testing.T) {
	s := NewScheduler(time.Minute)
	s.Schedule("", ReasonCompleted)
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", s.PendingCount())
	}
}

func TestSweep_UndeletableFileStaysPending(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	parent := t.TempDir()
	sub := filepath.Join(parent, "locked")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := touch(t, sub, "a.jpg")
	if err := os.Chmod(sub, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(sub, 0o755) })

	s := NewScheduler(time.Minute)
	s.Schedule(path, ReasonCompleted)

	if got := s.Sweep(); got != 0 {
		t.Fatalf("Sweep() = %d, want 0", got)
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1 (path requeued)", s.PendingCount())
	}
}

func TestSweep_RepeatedSweepIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "a.jpg")

	s := NewScheduler(time.Minute)
	s.Schedule(path, ReasonCompleted)

	if got := s.Sweep(); got != 1 {
		t.Fatalf("first Sweep() = %d, want 1", got)
	}
	if got := s.Sweep(); got != 0 {
		t.Fatalf("second Sweep() = %d, want 0", got)
	}
}
