package taskpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := newTaskQueue[int](100)
	for i := range 50 {
		if err := q.push(context.Background(), i, false); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	for i := range 50 {
		got, ok := q.pop()
		if !ok || got != i {
			t.Fatalf("pop = %d, %v; want %d, true", got, ok, i)
		}
	}
}

func TestQueueWrapAndGrow(t *testing.T) {
	q := newTaskQueue[int](4)
	ctx := context.Background()
	next, want := 0, 0
	for range 10 {
		for q.Len() < 4 {
			_ = q.push(ctx, next, false)
			next++
		}
		for range 3 {
			got, _ := q.pop()
			if got != want {
				t.Fatalf("pop = %d; want %d", got, want)
			}
			want++
		}
	}
	// requeue ignores the bound and forces the buffer to grow
	for range 40 {
		if !q.requeue(next) {
			t.Fatal("requeue refused on open queue")
		}
		next++
	}
	for want < next {
		got, _ := q.pop()
		if got != want {
			t.Fatalf("pop after grow = %d; want %d", got, want)
		}
		want++
	}
}

func TestQueueFullNonBlocking(t *testing.T) {
	q := newTaskQueue[int](2)
	ctx := context.Background()
	_ = q.push(ctx, 1, false)
	_ = q.push(ctx, 2, false)
	if err := q.push(ctx, 3, false); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("push on full queue = %v; want ErrQueueFull", err)
	}
}

func TestQueueBlockingPushWaitsForRoom(t *testing.T) {
	q := newTaskQueue[int](1)
	ctx := context.Background()
	_ = q.push(ctx, 1, false)

	pushed := make(chan error, 1)
	go func() { pushed <- q.push(ctx, 2, true) }()

	select {
	case err := <-pushed:
		t.Fatalf("blocking push returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if got, _ := q.pop(); got != 1 {
		t.Fatalf("pop = %d; want 1", got)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("blocking push: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking push did not resume after pop")
	}
}

func TestQueueBlockingPushContext(t *testing.T) {
	q := newTaskQueue[int](1)
	_ = q.push(context.Background(), 1, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.push(ctx, 2, true); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("push = %v; want deadline exceeded", err)
	}
}

func TestQueueCloseWakesWaiters(t *testing.T) {
	q := newTaskQueue[int](1)
	_ = q.push(context.Background(), 1, false)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- q.push(context.Background(), 2, true)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.close()
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrPoolClosed) {
			t.Fatalf("waiter got %v; want ErrPoolClosed", err)
		}
	}

	// buffered items survive close
	if got, ok := q.pop(); !ok || got != 1 {
		t.Fatalf("pop after close = %d, %v; want 1, true", got, ok)
	}
	if _, ok := q.pop(); ok {
		t.Fatal("pop on closed empty queue returned an item")
	}
	if q.requeue(3) {
		t.Fatal("requeue accepted on closed queue")
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newTaskQueue[int](4)
	got := make(chan int, 1)
	go func() {
		v, _ := q.pop()
		got <- v
	}()
	time.Sleep(10 * time.Millisecond)
	_ = q.push(context.Background(), 7, false)
	select {
	case v := <-got:
		if v != 7 {
			t.Fatalf("pop = %d; want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueueFlush(t *testing.T) {
	q := newTaskQueue[int](8)
	for i := range 5 {
		_ = q.push(context.Background(), i, false)
	}
	out := q.flush()
	if len(out) != 5 || out[0] != 0 || out[4] != 4 {
		t.Fatalf("flush = %v", out)
	}
	if q.Len() != 0 {
		t.Fatalf("Len after flush = %d", q.Len())
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	const producers, perProducer, consumers = 8, 500, 4
	q := newTaskQueue[int](16)

	var seen sync.Map
	var cwg sync.WaitGroup
	for range consumers {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				v, ok := q.pop()
				if !ok {
					return
				}
				if _, dup := seen.LoadOrStore(v, struct{}{}); dup {
					t.Errorf("item %d delivered twice", v)
				}
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := range producers {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := range perProducer {
				if err := q.push(context.Background(), p*perProducer+i, true); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}(p)
	}
	pwg.Wait()
	for q.Len() > 0 {
		time.Sleep(time.Millisecond)
	}
	q.close()
	cwg.Wait()

	n := 0
	seen.Range(func(_, _ any) bool { n++; return true })
	if n != producers*perProducer {
		t.Fatalf("delivered %d items; want %d", n, producers*perProducer)
	}
}
