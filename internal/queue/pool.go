package queue

import (
	"errors"
	"sync"

	"github.com/kaggather/gatherd/internal/player"
)

var ErrInvalidCapacity = errors.New("capacity must be greater than current queue size")

// JoinResult enumerates the outcomes of Pool.Join. Every distinct case is
// kept separate because callers report each one differently.
type JoinResult int

const (
	AlreadyQueued JoinResult = iota
	Added
	AddedAndFull // this add made the pool full; the caller starts a session
	PoolFull     // pool filled elsewhere before this add; nothing was added
)

// LeaveResult enumerates the outcomes of Pool.Leave.
type LeaveResult int

const (
	NotQueued LeaveResult = iota
	Removed
)

// InterestResult enumerates the outcomes of Pool.ToggleInterested.
type InterestResult int

const (
	AddedInterested InterestResult = iota
	RemovedInterested
)

// Pool is the ordered waiting pool of players ready for a match, plus the
// unordered set of players who only want to be notified. All methods share
// one critical section so a full pool is observed by exactly one caller.
type Pool struct {
	mu         sync.Mutex
	players    []player.Player
	capacity   int
	interested map[player.ID]bool
}

func NewPool(capacity int) *Pool {
	return &Pool{
		capacity:   capacity,
		interested: make(map[player.ID]bool),
	}
}

// Join appends the player to the pool. It is idempotent for players already
// queued and never lets the pool grow past capacity.
func (p *Pool) Join(pl player.Player) JoinResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.players {
		if q.ID == pl.ID {
			return AlreadyQueued
		}
	}
	if len(p.players) >= p.capacity {
		return PoolFull
	}
	p.players = append(p.players, pl)
	if len(p.players) == p.capacity {
		return AddedAndFull
	}
	return Added
}

func (p *Pool) Leave(id player.ID) LeaveResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.players {
		if q.ID == id {
			p.players = append(p.players[:i], p.players[i+1:]...)
			return Removed
		}
	}
	return NotQueued
}

// ToggleInterested flips the player's membership in the interested set.
// Interest is independent of queue membership.
func (p *Pool) ToggleInterested(id player.ID) InterestResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interested[id] {
		delete(p.interested, id)
		return RemovedInterested
	}
	p.interested[id] = true
	return AddedInterested
}

// Interested returns the current interested set in no particular order.
func (p *Pool) Interested() []player.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]player.ID, 0, len(p.interested))
	for id := range p.interested {
		out = append(out, id)
	}
	return out
}

// SnapshotAndClear atomically returns the queued players in join order and
// empties the pool. Used only when a session starts, so no Join can slip in
// between the full signal and the session construction.
func (p *Pool) SnapshotAndClear() []player.Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.players
	p.players = nil
	return out
}

// Contents returns a copy of the queued players in join order.
func (p *Pool) Contents() []player.Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]player.Player, len(p.players))
	copy(out, p.players)
	return out
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.players)
}

func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// SetCapacity raises or lowers the pool capacity. It refuses values at or
// below the current size so a full pool cannot appear retroactively.
func (p *Pool) SetCapacity(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= len(p.players) {
		return ErrInvalidCapacity
	}
	p.capacity = n
	return nil
}
