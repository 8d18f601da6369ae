package gather

import (
	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/queue"
	"github.com/kaggather/gatherd/internal/session"
)

// Msg is the marker interface for everything that goes through the
// orchestrator's inbox. The single loop consuming the inbox is the
// coordinating critical section: pool mutation, free-host selection and
// session-list changes never interleave across callers.
type Msg interface{ isGatherMsg() }

type joinMsg struct {
	Player player.Player
	Reply  chan JoinOutcome
}

type leaveMsg struct {
	ID    player.ID
	Reply chan queue.LeaveResult
}

type interestMsg struct {
	ID    player.ID
	Reply chan queue.InterestResult
}

type setCapacityMsg struct {
	N     int
	Reply chan error
}

type scrambleMsg struct {
	ID    player.ID
	Reply chan ScrambleOutcome
}

type takeSubSlotMsg struct {
	Player player.Player
	Reply  chan SubSlotOutcome
}

type endSessionMsg struct {
	SessionID int64
	Winner    session.Result
	Reply     chan error
}

type hostEventMsg struct {
	Event hostlink.Event
}

type connectHostMsg struct {
	Host  hostlink.Key
	Reply chan error
}

type disconnectHostMsg struct {
	Host  hostlink.Key
	Reply chan error
}

type queueQueryMsg struct {
	Reply chan QueueView
}

type sessionsQueryMsg struct {
	Reply chan []SessionView
}

type subscribeMsg struct {
	ID     string
	Outbox chan Notice
}

type unsubscribeMsg struct {
	ID string
}

func (joinMsg) isGatherMsg()           {}
func (leaveMsg) isGatherMsg()          {}
func (interestMsg) isGatherMsg()       {}
func (setCapacityMsg) isGatherMsg()    {}
func (scrambleMsg) isGatherMsg()       {}
func (takeSubSlotMsg) isGatherMsg()    {}
func (endSessionMsg) isGatherMsg()     {}
func (hostEventMsg) isGatherMsg()      {}
func (connectHostMsg) isGatherMsg()    {}
func (disconnectHostMsg) isGatherMsg() {}
func (queueQueryMsg) isGatherMsg()     {}
func (sessionsQueryMsg) isGatherMsg()  {}
func (subscribeMsg) isGatherMsg()      {}
func (unsubscribeMsg) isGatherMsg()    {}

// JoinStatus is the outcome of a join attempt, surfaced to the front end
// as a declined or confirmed action.
type JoinStatus int

const (
	JoinAdded JoinStatus = iota
	JoinStartedSession // this join filled the pool and spawned a session
	JoinAlreadyQueued
	JoinAlreadyInGame
	JoinPoolBusy // pool filled elsewhere before this join landed
)

type JoinOutcome struct {
	Status    JoinStatus
	QueueLen  int
	Capacity  int
	SessionID int64 // set when Status is JoinStartedSession
}

// ScrambleStatus is the outcome of a scramble vote.
type ScrambleStatus int

const (
	ScrambleNoGame ScrambleStatus = iota
	ScrambleAlreadyVoted
	ScrambleCounted
	ScrambleShuffled
)

type ScrambleOutcome struct {
	Status ScrambleStatus
	Votes  int
	Quorum int
}

// SubSlotStatus is the outcome of a player offering to fill a substitution
// slot.
type SubSlotStatus int

const (
	SubSlotNoRequest SubSlotStatus = iota
	SubSlotAlreadyInGame
	SubSlotTaken
)

type SubSlotOutcome struct {
	Status    SubSlotStatus
	SessionID int64
	Outgoing  player.Player // the member who was substituted out
}

// QueueView is a read-only snapshot of the waiting pool for the front end
// to format.
type QueueView struct {
	Players    []player.Player
	Capacity   int
	Interested []player.ID
}

// SessionView is a read-only snapshot of one live session.
type SessionView struct {
	ID            int64
	Phase         session.Phase
	Blue, Red     []player.Player
	BlueTickets   int // -1 until the host reports
	RedTickets    int
	Host          string
	HostConnected bool
	PendingSubs   []player.ID
}

// Notice is a user-facing event pushed to feed subscribers; the front end
// renders the text into chat.
type Notice struct {
	Type      string `json:"type"`
	SessionID int64  `json:"session_id,omitempty"`
	Text      string `json:"text"`
}
