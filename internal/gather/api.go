package gather

import (
	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/queue"
	"github.com/kaggather/gatherd/internal/session"
)

// The exported operations all work the same way: push a typed message into
// the inbox and wait on its reply channel. Callers therefore serialize
// through the loop without holding any lock themselves.

func (o *Orchestrator) Join(p player.Player) JoinOutcome {
	reply := make(chan JoinOutcome, 1)
	return request(o, joinMsg{Player: p, Reply: reply}, reply)
}

func (o *Orchestrator) Leave(id player.ID) queue.LeaveResult {
	reply := make(chan queue.LeaveResult, 1)
	return request(o, leaveMsg{ID: id, Reply: reply}, reply)
}

func (o *Orchestrator) ToggleInterested(id player.ID) queue.InterestResult {
	reply := make(chan queue.InterestResult, 1)
	return request(o, interestMsg{ID: id, Reply: reply}, reply)
}

func (o *Orchestrator) SetCapacity(n int) error {
	reply := make(chan error, 1)
	return request(o, setCapacityMsg{N: n, Reply: reply}, reply)
}

func (o *Orchestrator) CastScrambleVote(id player.ID) ScrambleOutcome {
	reply := make(chan ScrambleOutcome, 1)
	return request(o, scrambleMsg{ID: id, Reply: reply}, reply)
}

// TakeSubSlot lets a player outside any session fill a fulfilled
// substitution request, if one is waiting.
func (o *Orchestrator) TakeSubSlot(p player.Player) SubSlotOutcome {
	reply := make(chan SubSlotOutcome, 1)
	return request(o, takeSubSlotMsg{Player: p, Reply: reply}, reply)
}

func (o *Orchestrator) EndSession(id int64, winner session.Result) error {
	reply := make(chan error, 1)
	return request(o, endSessionMsg{SessionID: id, Winner: winner, Reply: reply}, reply)
}

func (o *Orchestrator) ConnectHost(key hostlink.Key) error {
	reply := make(chan error, 1)
	return request(o, connectHostMsg{Host: key, Reply: reply}, reply)
}

func (o *Orchestrator) DisconnectHost(key hostlink.Key) error {
	reply := make(chan error, 1)
	return request(o, disconnectHostMsg{Host: key, Reply: reply}, reply)
}

func (o *Orchestrator) QueueContents() QueueView {
	reply := make(chan QueueView, 1)
	return request(o, queueQueryMsg{Reply: reply}, reply)
}

func (o *Orchestrator) Sessions() []SessionView {
	reply := make(chan []SessionView, 1)
	return request(o, sessionsQueryMsg{Reply: reply}, reply)
}

// Subscribe registers a feed outbox under the given id. The channel is
// closed on Unsubscribe, on shutdown, or when the subscriber falls too far
// behind.
func (o *Orchestrator) Subscribe(id string, buffer int) <-chan Notice {
	ch := make(chan Notice, buffer)
	select {
	case o.inbox <- subscribeMsg{ID: id, Outbox: ch}:
	case <-o.ctx.Done():
		close(ch)
	}
	return ch
}

func (o *Orchestrator) Unsubscribe(id string) {
	select {
	case o.inbox <- unsubscribeMsg{ID: id}:
	case <-o.ctx.Done():
	}
}

// request sends one message and waits for its reply, giving up with a zero
// value if the orchestrator shuts down first.
func request[T any](o *Orchestrator, msg Msg, reply chan T) T {
	select {
	case o.inbox <- msg:
	case <-o.ctx.Done():
		var zero T
		return zero
	}
	select {
	case v := <-reply:
		return v
	case <-o.ctx.Done():
		var zero T
		return zero
	}
}
