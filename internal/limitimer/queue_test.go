package limitimer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueuePreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := NewQueue(4, func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
	})

	const n = 100
	for i := range n {
		if err := q.Enqueue(fmt.Sprintf("L%03d", i)); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(got) != n {
		t.Fatalf("processed %d lines, want %d", len(got), n)
	}
	for i, line := range got {
		if want := fmt.Sprintf("L%03d", i); line != want {
			t.Errorf("line[%d] = %s, want %s", i, line, want)
		}
	}

	stats := q.Stats()
	if stats.Enqueued != n || stats.Processed != n || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v, want %d enqueued and processed", stats, n)
	}
}

func TestQueueDoRunsInOrder(t *testing.T) {
	var got []string
	q := NewQueue(0, func(line string) { got = append(got, line) })

	_ = q.Enqueue("a")
	_ = q.Do(func() { got = append(got, "job") })
	_ = q.Enqueue("b")
	_ = q.Close(context.Background())

	want := []string{"a", "job", "b"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	q := NewQueue(1, func(string) {})
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := q.Enqueue("x"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
	if err := q.Do(func() {}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Do after Close = %v, want ErrQueueClosed", err)
	}
	// idempotent
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestQueueBlocksWhenFullInsteadOfDropping(t *testing.T) {
	release := make(chan struct{})
	var processed []string
	q := NewQueue(1, func(line string) {
		<-release
		processed = append(processed, line)
	})

	// first line occupies the worker, second fills the buffer
	_ = q.Enqueue("a")
	_ = q.Enqueue("b")

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue("c") }()

	select {
	case err := <-blocked:
		t.Fatalf("Enqueue on full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-blocked; err != nil {
		t.Fatalf("blocked Enqueue = %v, want nil", err)
	}
	_ = q.Close(context.Background())

	if len(processed) != 3 {
		t.Errorf("processed = %v, want 3 lines", processed)
	}
}

func TestQueueCloseUnblocksProducers(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(1, func(string) { <-release })

	_ = q.Enqueue("a")
	_ = q.Enqueue("b")

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue("c") }()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- q.Close(context.Background()) }()

	if err := <-blocked; !errors.Is(err, ErrQueueClosed) {
		t.Errorf("blocked Enqueue = %v, want ErrQueueClosed", err)
	}

	close(release)
	if err := <-closed; err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
	if got := q.Stats().Processed; got != 2 {
		t.Errorf("Processed = %d, want 2", got)
	}
}

func TestQueueCloseTimeoutDropsBacklog(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(8, func(string) { <-release })

	for i := range 5 {
		_ = q.Enqueue(fmt.Sprint(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- q.Close(ctx) }()

	time.Sleep(40 * time.Millisecond)
	close(release)

	if err := <-done; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want DeadlineExceeded", err)
	}

	stats := q.Stats()
	if stats.Processed+stats.Dropped != 5 {
		t.Errorf("processed %d + dropped %d, want 5", stats.Processed, stats.Dropped)
	}
	if stats.Dropped == 0 {
		t.Error("Dropped = 0, want backlog counted as dropped")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	var mu sync.Mutex
	count := 0
	q := NewQueue(16, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = q.Enqueue(fmt.Sprintf("%d-%d", p, i))
			}
		}()
	}
	wg.Wait()
	_ = q.Close(context.Background())

	if count != 400 {
		t.Errorf("processed %d, want 400", count)
	}
}
