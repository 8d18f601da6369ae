package sub

import (
	"sync"

	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/session"
)

// RequestResult enumerates the outcomes of Registry.Request.
type RequestResult int

const (
	RequestTargetNotInSession RequestResult = iota
	RequestAlreadyPending
	RequestPending
)

// VoteResult enumerates the outcomes of Registry.Vote.
type VoteResult int

const (
	VoteVoterNotInSession VoteResult = iota
	VoteTargetNotInSession
	VoteTargetAlreadyBeingSubstituted
	VoteAlreadyVoted
	VoteRecorded
	VoteThresholdReached
)

type key struct {
	sessionID int64
	target    player.ID
}

type request struct {
	votes     map[player.ID]bool
	fulfilled bool
}

// Registry is the cross-session bookkeeping of pending substitution
// requests and the votes accumulated toward each. Reaching the vote quorum
// marks a request fulfilled; performing the actual swap is the caller's
// job, using whatever replacement the surrounding system supplies.
type Registry struct {
	mu      sync.Mutex
	quorum  int
	pending map[key]*request
}

func NewRegistry(quorum int) *Registry {
	if quorum <= 0 {
		quorum = 3
	}
	return &Registry{
		quorum:  quorum,
		pending: make(map[key]*request),
	}
}

func (r *Registry) Quorum() int { return r.quorum }

// Request records a pending substitution request for target in the
// session. A second request while one is already pending is a no-op.
func (r *Registry) Request(s *session.Session, target player.ID) RequestResult {
	if !s.HasPlayer(target) {
		return RequestTargetNotInSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{sessionID: s.ID(), target: target}
	if _, ok := r.pending[k]; ok {
		return RequestAlreadyPending
	}
	// An explicit request from the target needs no vote quorum; it is
	// immediately waiting for a substitute to step in.
	r.pending[k] = &request{votes: make(map[player.ID]bool), fulfilled: true}
	return RequestPending
}

// Vote records one member's vote to substitute target out. Both voter and
// target must be members of the session. The first vote for a target
// creates its request; reaching the quorum marks the request fulfilled.
// count is the tally after this vote.
func (r *Registry) Vote(s *session.Session, target, voter player.ID) (result VoteResult, count int) {
	if !s.HasPlayer(voter) {
		return VoteVoterNotInSession, 0
	}
	if !s.HasPlayer(target) {
		return VoteTargetNotInSession, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{sessionID: s.ID(), target: target}
	req, ok := r.pending[k]
	if !ok {
		req = &request{votes: make(map[player.ID]bool)}
		r.pending[k] = req
	}
	if req.fulfilled {
		return VoteTargetAlreadyBeingSubstituted, len(req.votes)
	}
	if req.votes[voter] {
		return VoteAlreadyVoted, len(req.votes)
	}
	req.votes[voter] = true
	if len(req.votes) >= r.quorum {
		req.fulfilled = true
		return VoteThresholdReached, len(req.votes)
	}
	return VoteRecorded, len(req.votes)
}

// AnyFulfilled returns a fulfilled request from any session, in no
// particular order; the slot an incoming substitute takes when several are
// waiting is arbitrary.
func (r *Registry) AnyFulfilled() (sessionID int64, target player.ID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, req := range r.pending {
		if req.fulfilled {
			return k.sessionID, k.target, true
		}
	}
	return 0, "", false
}

// Resolve removes the request for target once the swap has been performed.
func (r *Registry) Resolve(sessionID int64, target player.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key{sessionID: sessionID, target: target})
}

// ClearSession drops every request tied to the session. Called when the
// session ends.
func (r *Registry) ClearSession(sessionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.pending {
		if k.sessionID == sessionID {
			delete(r.pending, k)
		}
	}
}

// PendingTargets lists the players a substitute is currently wanted for in
// the session, fulfilled requests first.
func (r *Registry) PendingTargets(sessionID int64) []player.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fulfilled, voting []player.ID
	for k, req := range r.pending {
		if k.sessionID != sessionID {
			continue
		}
		if req.fulfilled {
			fulfilled = append(fulfilled, k.target)
		} else {
			voting = append(voting, k.target)
		}
	}
	return append(fulfilled, voting...)
}
