package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/kaggather/gatherd/internal/player"
)

func testPlayer(i int) player.Player {
	return player.Player{
		ID:       player.ID(fmt.Sprintf("p%d", i)),
		GameName: fmt.Sprintf("player%d", i),
	}
}

func TestPool_JoinOutcomes(t *testing.T) {
	p := NewPool(2)

	if got := p.Join(testPlayer(1)); got != Added {
		t.Fatalf("first join: want Added, got %v", got)
	}
	if got := p.Join(testPlayer(1)); got != AlreadyQueued {
		t.Fatalf("duplicate join: want AlreadyQueued, got %v", got)
	}
	if got := p.Join(testPlayer(2)); got != AddedAndFull {
		t.Fatalf("filling join: want AddedAndFull, got %v", got)
	}
	// The pool filled but nobody snapshotted yet; a third player must not
	// sneak in.
	if got := p.Join(testPlayer(3)); got != PoolFull {
		t.Fatalf("join after full: want PoolFull, got %v", got)
	}
	if p.Len() != 2 {
		t.Fatalf("want len 2, got %d", p.Len())
	}
}

func TestPool_LeavePreservesOrder(t *testing.T) {
	p := NewPool(5)
	for i := 1; i <= 4; i++ {
		p.Join(testPlayer(i))
	}
	if got := p.Leave("p2"); got != Removed {
		t.Fatalf("want Removed, got %v", got)
	}
	if got := p.Leave("p2"); got != NotQueued {
		t.Fatalf("second leave: want NotQueued, got %v", got)
	}
	want := []player.ID{"p1", "p3", "p4"}
	got := p.Contents()
	if len(got) != len(want) {
		t.Fatalf("want %d players, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestPool_ToggleInterested(t *testing.T) {
	p := NewPool(2)
	if got := p.ToggleInterested("p1"); got != AddedInterested {
		t.Fatalf("want AddedInterested, got %v", got)
	}
	if got := p.ToggleInterested("p1"); got != RemovedInterested {
		t.Fatalf("want RemovedInterested, got %v", got)
	}
	// Interest is independent of queue membership.
	p.Join(testPlayer(1))
	if got := p.ToggleInterested("p1"); got != AddedInterested {
		t.Fatalf("queued player: want AddedInterested, got %v", got)
	}
	if len(p.Interested()) != 1 {
		t.Fatalf("want 1 interested, got %d", len(p.Interested()))
	}
}

func TestPool_SnapshotAndClear(t *testing.T) {
	p := NewPool(3)
	for i := 1; i <= 3; i++ {
		p.Join(testPlayer(i))
	}
	snap := p.SnapshotAndClear()
	if len(snap) != 3 {
		t.Fatalf("want 3 in snapshot, got %d", len(snap))
	}
	for i := range snap {
		if snap[i].ID != testPlayer(i+1).ID {
			t.Fatalf("snapshot order wrong at %d: %v", i, snap[i].ID)
		}
	}
	if p.Len() != 0 {
		t.Fatalf("pool should be empty after snapshot, got %d", p.Len())
	}
	if got := p.Join(testPlayer(1)); got != Added {
		t.Fatalf("join after clear: want Added, got %v", got)
	}
}

func TestPool_SetCapacity(t *testing.T) {
	p := NewPool(4)
	p.Join(testPlayer(1))
	p.Join(testPlayer(2))

	if err := p.SetCapacity(2); err != ErrInvalidCapacity {
		t.Fatalf("capacity == size: want ErrInvalidCapacity, got %v", err)
	}
	if err := p.SetCapacity(1); err != ErrInvalidCapacity {
		t.Fatalf("capacity < size: want ErrInvalidCapacity, got %v", err)
	}
	if err := p.SetCapacity(3); err != nil {
		t.Fatalf("raise to 3: unexpected error %v", err)
	}
	if got := p.Join(testPlayer(3)); got != AddedAndFull {
		t.Fatalf("filling to new capacity: want AddedAndFull, got %v", got)
	}
}

func TestPool_ConcurrentJoins_ExactlyOneFull(t *testing.T) {
	const n = 16
	p := NewPool(n)

	var wg sync.WaitGroup
	results := make(chan JoinResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- p.Join(testPlayer(i))
		}(i)
	}
	wg.Wait()
	close(results)

	full, added := 0, 0
	for r := range results {
		switch r {
		case AddedAndFull:
			full++
		case Added:
			added++
		default:
			t.Fatalf("unexpected result %v", r)
		}
	}
	if full != 1 {
		t.Fatalf("want exactly one AddedAndFull, got %d", full)
	}
	if added != n-1 {
		t.Fatalf("want %d Added, got %d", n-1, added)
	}
}

// Random sequences of joins and leaves never duplicate a player and never
// push the size past capacity.
func TestPool_RandomOps_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPool(6)
	for op := 0; op < 2000; op++ {
		pl := testPlayer(rng.Intn(10))
		if rng.Intn(3) == 0 {
			p.Leave(pl.ID)
		} else {
			p.Join(pl)
		}
		contents := p.Contents()
		if len(contents) > 6 {
			t.Fatalf("op %d: size %d exceeds capacity", op, len(contents))
		}
		seen := make(map[player.ID]bool)
		for _, q := range contents {
			if seen[q.ID] {
				t.Fatalf("op %d: duplicate player %s", op, q.ID)
			}
			seen[q.ID] = true
		}
		if len(contents) == 6 {
			p.SnapshotAndClear()
		}
	}
}
