package snowflake

import (
	"sync"
	"testing"
	"time"
)

func TestNewNode_Range(t *testing.T) {
	if _, err := NewNode(-1); err == nil {
		t.Error("expected error for negative node")
	}
	if _, err := NewNode(MaxNode + 1); err == nil {
		t.Error("expected error for node above MaxNode")
	}
	if _, err := NewNode(MaxNode); err != nil {
		t.Errorf("unexpected error for MaxNode: %v", err)
	}
}

func TestNext_UniqueAndIncreasing(t *testing.T) {
	n, err := NewNode(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var prev int64
	for i := 0; i < 10000; i++ {
		id := n.Next()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestNext_ClockGoesBackwards(t *testing.T) {
	n, _ := NewNode(1)
	clock := int64(5000)
	n.now = func() int64 { return clock }

	first := n.Next()
	clock = 4000
	second := n.Next()
	if second <= first {
		t.Fatalf("id went backwards: %d then %d", first, second)
	}
}

func TestNext_Concurrent(t *testing.T) {
	n, _ := NewNode(1)
	const workers, per = 8, 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := n.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("got %d unique ids, want %d", len(seen), workers*per)
	}
}

func TestTimeAndNodeOf(t *testing.T) {
	n, _ := NewNode(42)
	before := time.Now().Add(-time.Second)
	id := n.Next()
	after := time.Now().Add(time.Second)

	ts := Time(id)
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Time(id) = %v, want between %v and %v", ts, before, after)
	}
	if got := NodeOf(id); got != 42 {
		t.Errorf("NodeOf(id) = %d, want 42", got)
	}
}
