package hostlink

import (
	"strconv"
	"strings"
)

// Inbound lines are free-form status text from the host's game script. The
// lines we act on all start with the gather marker; everything else is
// ignored. Team numbers on the wire are 0 for blue and 1 for red, and a
// match-ended argument of -1 means a draw.
const gatherPrefix = "<gather>"

// HostMsg is a recognized inbound message parsed from one line.
type HostMsg interface{ isHostMsg() }

// RoundStarted reports that build time has begun for a new round.
type RoundStarted struct{}

// BuildTimeEnded reports that build time is over and combat has begun.
type BuildTimeEnded struct{}

// TicketUpdate reports the remaining tickets for one team.
type TicketUpdate struct {
	Team    int
	Tickets int
}

// SubRequest reports that a player asked in-game to be substituted out.
type SubRequest struct {
	Target string // in-game username
}

// SubVote reports an in-game vote to substitute another player out.
type SubVote struct {
	Target string
	Voter  string
}

// MatchEnded reports the final result. Winner is 0 or 1 for a team win and
// -1 for a draw.
type MatchEnded struct {
	Winner int
}

func (RoundStarted) isHostMsg()   {}
func (BuildTimeEnded) isHostMsg() {}
func (TicketUpdate) isHostMsg()   {}
func (SubRequest) isHostMsg()     {}
func (SubVote) isHostMsg()        {}
func (MatchEnded) isHostMsg()     {}

// ParseLine parses one inbound line into a host message. The second return
// is false for lines that carry no recognized gather message.
func ParseLine(line string) (HostMsg, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), gatherPrefix)
	if !ok {
		return nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, false
	}
	switch fields[0] {
	case "roundstart":
		return RoundStarted{}, true
	case "buildtimeend":
		return BuildTimeEnded{}, true
	case "tickets":
		if len(fields) != 3 {
			return nil, false
		}
		team, err := strconv.Atoi(fields[1])
		if err != nil || (team != 0 && team != 1) {
			return nil, false
		}
		tickets, err := strconv.Atoi(fields[2])
		if err != nil || tickets < 0 {
			return nil, false
		}
		return TicketUpdate{Team: team, Tickets: tickets}, true
	case "subreq":
		if len(fields) != 2 {
			return nil, false
		}
		return SubRequest{Target: fields[1]}, true
	case "subvote":
		if len(fields) != 3 {
			return nil, false
		}
		return SubVote{Target: fields[1], Voter: fields[2]}, true
	case "matchend":
		if len(fields) != 2 {
			return nil, false
		}
		winner, err := strconv.Atoi(fields[1])
		if err != nil || winner < -1 || winner > 1 {
			return nil, false
		}
		return MatchEnded{Winner: winner}, true
	}
	return nil, false
}
