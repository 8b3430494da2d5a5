package propagation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEachVisitsEveryIndex(t *testing.T) {
	const n = 50
	var seen [n]atomic.Bool

	if err := Each(context.Background(), 4, n, func(i int) { seen[i].Store(true) }); err != nil {
		t.Fatalf("Each: %v", err)
	}
	for i := range seen {
		if !seen[i].Load() {
			t.Fatalf("index %d never visited", i)
		}
	}
}

func TestEachBoundsConcurrency(t *testing.T) {
	const workers = 3
	var cur, peak atomic.Int32

	err := Each(context.Background(), workers, 64, func(i int) {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		cur.Add(-1)
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency = %d, want at most %d", got, workers)
	}
}

func TestEachCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := Each(ctx, 2, 100, func(i int) { calls.Add(1) })
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls.Load() >= 100 {
		t.Errorf("cancelled run still visited all %d indexes", calls.Load())
	}
}
