package taskrunner

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRunnerRunsInOrder(t *testing.T) {
	r := New("test")
	defer r.Stop()

	var mu sync.Mutex
	var got []int
	for i := range 10 {
		if err := r.PostTask(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("PostTask: %v", err)
		}
	}
	if err := r.PostAndWait(func() {}); err != nil {
		t.Fatalf("PostAndWait: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestRunnerBelongsToCurrentThread(t *testing.T) {
	r := New("test")
	defer r.Stop()

	if r.BelongsToCurrentThread() {
		t.Fatal("test goroutine reported as runner thread")
	}
	var inside bool
	if err := r.PostAndWait(func() { inside = r.BelongsToCurrentThread() }); err != nil {
		t.Fatal(err)
	}
	if !inside {
		t.Fatal("task not reported as runner thread")
	}
}

func TestRunnerDelayedTask(t *testing.T) {
	r := New("test")
	defer r.Stop()

	done := make(chan time.Time, 1)
	start := time.Now()
	if err := r.PostDelayedTask(20*time.Millisecond, func() { done <- time.Now() }); err != nil {
		t.Fatal(err)
	}
	select {
	case at := <-done:
		if at.Sub(start) < 20*time.Millisecond {
			t.Fatalf("delayed task ran after %v", at.Sub(start))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestRunnerSurvivesPanic(t *testing.T) {
	r := New("test")
	defer r.Stop()

	_ = r.PostTask(func() { panic("boom") })
	ran := false
	if err := r.PostAndWait(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("runner stopped after panic")
	}
}

func TestRunnerStop(t *testing.T) {
	r := New("test")
	r.Stop()
	r.Stop()
	if err := r.PostTask(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("PostTask after Stop = %v, want ErrStopped", err)
	}
	if err := r.PostAndWait(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("PostAndWait after Stop = %v, want ErrStopped", err)
	}
}

func TestManualRunner(t *testing.T) {
	m := NewManual()
	var got []string
	_ = m.PostDelayedTask(10*time.Millisecond, func() { got = append(got, "late") })
	_ = m.PostTask(func() {
		got = append(got, "first")
		_ = m.PostTask(func() { got = append(got, "nested") })
	})

	if n := m.RunPending(); n != 2 {
		t.Fatalf("RunPending ran %d, want 2", n)
	}
	if !m.HasPendingTasks() {
		t.Fatal("delayed task missing")
	}
	m.Advance(10 * time.Millisecond)
	m.RunPending()

	want := []string{"first", "nested", "late"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestManualRunUntilIdleLimit(t *testing.T) {
	m := NewManual()
	var repost func()
	repost = func() { _ = m.PostDelayedTask(time.Millisecond, repost) }
	_ = m.PostTask(repost)
	if m.RunUntilIdle(50) {
		t.Fatal("self-reposting task reported idle")
	}

	m.Stop()
	if err := m.PostTask(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("PostTask after Stop = %v", err)
	}
}
