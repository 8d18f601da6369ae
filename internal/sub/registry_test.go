package sub

import (
	"fmt"
	"testing"

	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/session"
)

func testSession(t *testing.T, id int64, n int) *session.Session {
	t.Helper()
	players := make([]player.Player, n)
	for i := range players {
		players[i] = player.Player{
			ID:       player.ID(fmt.Sprintf("s%d-p%d", id, i)),
			GameName: fmt.Sprintf("player%d", i),
		}
	}
	return session.New(id, players, 7, 0)
}

func pid(sessID int64, i int) player.ID {
	return player.ID(fmt.Sprintf("s%d-p%d", sessID, i))
}

func TestRequest(t *testing.T) {
	r := NewRegistry(2)
	s := testSession(t, 1, 6)

	if got := r.Request(s, "stranger"); got != RequestTargetNotInSession {
		t.Fatalf("unknown target: want TargetNotInSession, got %v", got)
	}
	if got := r.Request(s, pid(1, 0)); got != RequestPending {
		t.Fatalf("first request: want Pending, got %v", got)
	}
	if got := r.Request(s, pid(1, 0)); got != RequestAlreadyPending {
		t.Fatalf("repeat request: want AlreadyPending, got %v", got)
	}
	// An explicit request is immediately actionable.
	if _, _, ok := r.AnyFulfilled(); !ok {
		t.Fatal("request should be waiting for a substitute")
	}
}

func TestVote_QuorumFlow(t *testing.T) {
	r := NewRegistry(2)
	s := testSession(t, 1, 6)
	target := pid(1, 0)

	if got, _ := r.Vote(s, target, "stranger"); got != VoteVoterNotInSession {
		t.Fatalf("unknown voter: want VoterNotInSession, got %v", got)
	}
	if got, _ := r.Vote(s, "stranger", pid(1, 1)); got != VoteTargetNotInSession {
		t.Fatalf("unknown target: want TargetNotInSession, got %v", got)
	}

	got, count := r.Vote(s, target, pid(1, 1))
	if got != VoteRecorded || count != 1 {
		t.Fatalf("first vote: want Recorded(1), got %v(%d)", got, count)
	}
	if got, _ := r.Vote(s, target, pid(1, 1)); got != VoteAlreadyVoted {
		t.Fatalf("repeat voter: want AlreadyVoted, got %v", got)
	}
	got, count = r.Vote(s, target, pid(1, 2))
	if got != VoteThresholdReached || count != 2 {
		t.Fatalf("quorum vote: want ThresholdReached(2), got %v(%d)", got, count)
	}
	// Further votes are pointless once the request is fulfilled.
	if got, _ := r.Vote(s, target, pid(1, 3)); got != VoteTargetAlreadyBeingSubstituted {
		t.Fatalf("vote after quorum: want TargetAlreadyBeingSubstituted, got %v", got)
	}
	if _, _, ok := r.AnyFulfilled(); !ok {
		t.Fatal("quorum should have fulfilled the request")
	}
}

func TestVote_AfterExplicitRequest(t *testing.T) {
	r := NewRegistry(2)
	s := testSession(t, 1, 4)
	target := pid(1, 0)

	r.Request(s, target)
	if got, _ := r.Vote(s, target, pid(1, 1)); got != VoteTargetAlreadyBeingSubstituted {
		t.Fatalf("vote on requested target: want TargetAlreadyBeingSubstituted, got %v", got)
	}
}

func TestResolveRemovesRequest(t *testing.T) {
	r := NewRegistry(2)
	s := testSession(t, 1, 4)
	target := pid(1, 0)

	r.Request(s, target)
	r.Resolve(1, target)
	if _, _, ok := r.AnyFulfilled(); ok {
		t.Fatal("resolved request should be gone")
	}
	if got := r.Request(s, target); got != RequestPending {
		t.Fatalf("request after resolve: want Pending, got %v", got)
	}
}

func TestClearSession(t *testing.T) {
	r := NewRegistry(2)
	s1 := testSession(t, 1, 4)
	s2 := testSession(t, 2, 4)

	r.Request(s1, pid(1, 0))
	r.Vote(s1, pid(1, 1), pid(1, 2))
	r.Request(s2, pid(2, 0))

	r.ClearSession(1)
	if got := r.PendingTargets(1); len(got) != 0 {
		t.Fatalf("session 1 requests should be cleared, got %v", got)
	}
	if got := r.PendingTargets(2); len(got) != 1 {
		t.Fatalf("session 2 requests should survive, got %v", got)
	}
}

func TestAnyFulfilled(t *testing.T) {
	r := NewRegistry(3)
	s := testSession(t, 5, 6)

	if _, _, ok := r.AnyFulfilled(); ok {
		t.Fatal("empty registry should have no fulfilled request")
	}
	// Below quorum: not fulfilled yet.
	r.Vote(s, pid(5, 0), pid(5, 1))
	r.Vote(s, pid(5, 0), pid(5, 2))
	if _, _, ok := r.AnyFulfilled(); ok {
		t.Fatal("below quorum must not be fulfilled")
	}
	r.Vote(s, pid(5, 0), pid(5, 3))
	sessID, target, ok := r.AnyFulfilled()
	if !ok || sessID != 5 || target != pid(5, 0) {
		t.Fatalf("want session 5 target s5-p0, got %d %s (%v)", sessID, target, ok)
	}
}
