package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Workers(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"explicit", 3, 3},
		{"zero uses GOMAXPROCS", 0, runtime.GOMAXPROCS(0)},
		{"negative uses GOMAXPROCS", -2, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.n)
			defer pool.Close()
			if got := pool.Workers(); got != tt.want {
				t.Errorf("Workers() = %d, want %d", got, tt.want)
			}
			if !pool.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	tasks := make([]func(), 200)
	for i := range tasks {
		tasks[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(tasks)

	if got := counter.Load(); got != 200 {
		t.Errorf("counter = %d, want 200", got)
	}
	if got := pool.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d after ExecuteAll, want 0", got)
	}
}

func TestWorkerPool_StealsFromBlockedWorker(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	release := make(chan struct{})
	var fast atomic.Int64
	tasks := []func(){
		func() { <-release },
	}
	for range 20 {
		tasks = append(tasks, func() { fast.Add(1) })
	}

	done := make(chan struct{})
	go func() {
		pool.ExecuteAll(tasks)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fast.Load() < 20 {
		select {
		case <-deadline:
			close(release)
			t.Fatalf("only %d fast tasks ran while one worker was blocked", fast.Load())
		default:
			runtime.Gosched()
		}
	}
	close(release)
	<-done
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2)

	var wg sync.WaitGroup
	wg.Add(10)
	for range 10 {
		if !pool.Submit(wg.Done) {
			t.Fatal("Submit on running pool returned false")
		}
	}
	wg.Wait()

	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
	if pool.Submit(func() {}) {
		t.Error("Submit on closed pool returned true")
	}
	if pool.Submit(nil) {
		t.Error("Submit(nil) returned true")
	}
	pool.ExecuteAll([]func(){func() { t.Error("ran on closed pool") }})
}
