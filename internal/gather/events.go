package gather

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/session"
	"github.com/kaggather/gatherd/internal/sub"
)

// handleHostEvent routes one event from a host link into the session or
// registry it belongs to. Unknown or unbound events are logged and
// dropped; nothing here is allowed to stop the loop.
func (o *Orchestrator) handleHostEvent(ev hostlink.Event) {
	switch ev.Kind {
	case hostlink.EventConnected:
		o.broadcast(Notice{Type: "host", Text: fmt.Sprintf("Connected to host %s", ev.Host)})
		return
	case hostlink.EventDisconnected:
		o.broadcast(Notice{Type: "host", Text: fmt.Sprintf("Lost connection to host %s", ev.Host)})
		return
	}

	msg, ok := hostlink.ParseLine(ev.Line)
	if !ok {
		return
	}
	ls := o.findLinkSession(ev.Host)
	if ls == nil {
		o.log.Warn("host event with no bound session",
			zap.String("host", ev.Host.String()), zap.String("line", ev.Line))
		return
	}
	sess, link := ls.sess, ls.link

	switch m := msg.(type) {
	case hostlink.RoundStarted:
		if !sess.SetBuilding() {
			o.log.Warn("unexpected phase transition on ended session", zap.Int64("session", sess.ID()))
			return
		}
		o.broadcast(Notice{Type: "phase", SessionID: sess.ID(), Text: "Building time started on server"})

	case hostlink.BuildTimeEnded:
		if !sess.SetInProgress() {
			o.log.Warn("unexpected phase transition on ended session", zap.Int64("session", sess.ID()))
			return
		}
		o.broadcast(Notice{Type: "phase", SessionID: sess.ID(), Text: "Building time ended on server"})

	case hostlink.TicketUpdate:
		team := session.TeamBlue
		if m.Team == 1 {
			team = session.TeamRed
		}
		if err := sess.SetTickets(team, m.Tickets); err != nil {
			o.log.Warn("bad ticket update", zap.Int64("session", sess.ID()), zap.Error(err))
		}

	case hostlink.SubRequest:
		o.handleHostSubRequest(sess, link, m)

	case hostlink.SubVote:
		o.handleHostSubVote(sess, link, m)

	case hostlink.MatchEnded:
		o.endSession(ls, winnerResult(m.Winner))
	}
}

func (o *Orchestrator) handleHostSubRequest(sess *session.Session, link *hostlink.Link, m hostlink.SubRequest) {
	target, ok := sess.FindByGameName(m.Target)
	if !ok {
		link.Say(fmt.Sprintf("An error occured adding sub request for %s, this player isn't playing?", m.Target))
		return
	}
	switch o.subs.Request(sess, target.ID) {
	case sub.RequestPending:
		link.Say(fmt.Sprintf("Sub request added for player %s, use !sub to sub into their place!", m.Target))
		o.broadcast(Notice{Type: "sub_request", SessionID: sess.ID(),
			Text: fmt.Sprintf("Sub request added for player %s, use !sub to sub into their place!", target)})
		o.log.Info("sub requested", zap.Int64("session", sess.ID()), zap.String("target", m.Target))
	case sub.RequestAlreadyPending:
		link.Say(fmt.Sprintf("%s is already being subbed!", m.Target))
	case sub.RequestTargetNotInSession:
		link.Say(fmt.Sprintf("An error occured adding sub request for %s, this player isn't playing?", m.Target))
	}
}

func (o *Orchestrator) handleHostSubVote(sess *session.Session, link *hostlink.Link, m hostlink.SubVote) {
	target, ok := sess.FindByGameName(m.Target)
	if !ok {
		link.Say(fmt.Sprintf("An error occured adding sub vote for %s, a linked player with this username could not be found", m.Target))
		return
	}
	voter, ok := sess.FindByGameName(m.Voter)
	if !ok {
		link.Say(fmt.Sprintf("You and the player you are voting for must be in the same game %s!", m.Voter))
		return
	}
	result, count := o.subs.Vote(sess, target.ID, voter.ID)
	switch result {
	case sub.VoteVoterNotInSession, sub.VoteTargetNotInSession:
		link.Say(fmt.Sprintf("You and the player you are voting for must be in the same game %s!", m.Voter))
	case sub.VoteTargetAlreadyBeingSubstituted:
		link.Say(fmt.Sprintf("%s is already being subbed %s!", m.Target, m.Voter))
	case sub.VoteAlreadyVoted:
		link.Say(fmt.Sprintf("You have already voted to sub %s, %s!", m.Target, m.Voter))
	case sub.VoteThresholdReached:
		link.Say(fmt.Sprintf("Sub request added for %s, use !sub to sub into their place!", m.Target))
		o.broadcast(Notice{Type: "sub_request", SessionID: sess.ID(),
			Text: fmt.Sprintf("A sub has been requested for player %s, use !sub to sub into their place!", target)})
		o.log.Info("sub vote quorum reached", zap.Int64("session", sess.ID()), zap.String("target", m.Target))
	case sub.VoteRecorded:
		link.Say(fmt.Sprintf("Vote to sub %s has been counted for %s (%d/%d)", m.Target, m.Voter, count, o.subs.Quorum()))
		o.broadcast(Notice{Type: "sub_vote", SessionID: sess.ID(),
			Text: fmt.Sprintf("Vote to sub %s has been counted for %s (%d/%d)", m.Target, m.Voter, count, o.subs.Quorum())})
	}
}

// winnerResult maps the wire encoding (0 blue, 1 red, -1 draw) to a
// session result.
func winnerResult(w int) session.Result {
	switch w {
	case 0:
		return session.ResultBlueWin
	case 1:
		return session.ResultRedWin
	case -1:
		return session.ResultDraw
	default:
		return session.ResultNone
	}
}
