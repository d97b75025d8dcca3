package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelize(t *testing.T) {
	tests := []struct {
		name  string
		items int
	}{
		{"zero items", 0},
		{"one item", 1},
		{"fewer than cores", 3},
		{"many items", 10007},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]int32, tt.items)
			Parallelize(tt.items, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			})
			for i, c := range seen {
				if c != 1 {
					t.Fatalf("item %d visited %d times", i, c)
				}
			}
		})
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("sequential path got range [%d, %d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected one sequential call, got %d", calls)
	}

	var total int64
	ParallelizeWithThreshold(1000, 10, func(start, end int) {
		atomic.AddInt64(&total, int64(end-start))
	})
	if total != 1000 {
		t.Errorf("covered %d items, want 1000", total)
	}
}

func TestParallelizeWorkers(t *testing.T) {
	out := make([]int, 500)
	err := ParallelizeWorkers(context.Background(), len(out), 4, func(i int) error {
		out[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
}

func TestParallelizeWorkersBoundsConcurrency(t *testing.T) {
	var running, peak int32
	err := ParallelizeWorkers(context.Background(), 40, 3, func(i int) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", peak)
	}
}

func TestParallelizeWorkersFirstError(t *testing.T) {
	boom := errors.New("class 7 diverged")
	var calls int32
	err := ParallelizeWorkers(context.Background(), 1000, 2, func(i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 5 {
			return boom
		}
		time.Sleep(100 * time.Microsecond)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
	if atomic.LoadInt32(&calls) == 1000 {
		t.Error("dispatch should stop after the first error")
	}
}

func TestParallelizeWorkersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	err := ParallelizeWorkers(ctx, 1000, 2, func(i int) error {
		if i == 3 {
			once.Do(cancel)
		}
		time.Sleep(100 * time.Microsecond)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := ParallelizeWorkers(ctx, 0, 2, func(int) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("zero items on a cancelled context should report it, got %v", err)
	}
}
