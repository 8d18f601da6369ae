package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kaggather/gatherd/internal/player"
)

var (
	ErrNotInSession  = errors.New("player is not in this session")
	ErrAlreadyMember = errors.New("player is already in this session")
	ErrResultSet     = errors.New("result already recorded")
	ErrBadTickets    = errors.New("ticket count must be non-negative")
)

// Team names one of the two sides of a session.
type Team string

const (
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

// Result is the final outcome of a session, recorded exactly once.
type Result string

const (
	ResultBlueWin Result = "blue"
	ResultRedWin  Result = "red"
	ResultDraw    Result = "draw"
	ResultNone    Result = "none" // forced end with no scores given
)

// Phase is the lifecycle state of a session. Building and InProgress
// alternate as the host reports round phases; Ended is terminal and is
// reached only through RecordResult.
type Phase string

const (
	PhaseForming    Phase = "forming"
	PhaseBuilding   Phase = "building"
	PhaseInProgress Phase = "in progress"
	PhaseEnded      Phase = "ended"
)

// ticketsUnknown is the counter value before the host reports anything.
const ticketsUnknown = -1

// ScrambleOutcome reports what a scramble vote did.
type ScrambleOutcome int

const (
	ScrambleAlreadyVoted ScrambleOutcome = iota
	ScrambleVoteRecorded
	ScrambleTriggered
)

// Session is one active match between two teams. All mutation goes through
// its mutex so two simultaneous events for the same session serialize,
// while other sessions proceed independently.
type Session struct {
	id int64

	mu             sync.Mutex
	blue, red      []player.Player
	phase          Phase
	blueTickets    int
	redTickets     int
	scrambleVotes  map[player.ID]bool
	scrambleQuorum int
	result         Result
	resultSet      bool
	rng            *rand.Rand
}

// New creates a session in the Forming phase, assigns teams from the given
// seed, and immediately moves to Building. scrambleQuorum of 0 means a
// simple majority of the session's players.
func New(id int64, players []player.Player, seed int64, scrambleQuorum int) *Session {
	if scrambleQuorum <= 0 {
		scrambleQuorum = len(players)/2 + 1
	}
	s := &Session{
		id:             id,
		phase:          PhaseForming,
		blueTickets:    ticketsUnknown,
		redTickets:     ticketsUnknown,
		scrambleVotes:  make(map[player.ID]bool),
		scrambleQuorum: scrambleQuorum,
		rng:            rand.New(rand.NewSource(seed)),
	}
	s.blue, s.red = splitTeams(players, s.rng)
	s.phase = PhaseBuilding
	return s
}

// splitTeams shuffles the players and deals them into two teams whose sizes
// differ by at most one. Deterministic for a given rng state.
func splitTeams(players []player.Player, rng *rand.Rand) (blue, red []player.Player) {
	shuffled := make([]player.Player, len(players))
	copy(shuffled, players)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	half := (len(shuffled) + 1) / 2
	return shuffled[:half], shuffled[half:]
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Roster returns copies of the two team lists.
func (s *Session) Roster() (blue, red []player.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blue = append(blue, s.blue...)
	red = append(red, s.red...)
	return blue, red
}

// Players returns every member, blue team first.
func (s *Session) Players() []player.Player {
	blue, red := s.Roster()
	return append(blue, red...)
}

// TeamOf reports which team the player is on.
func (s *Session) TeamOf(id player.ID) (Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.blue, id) >= 0 {
		return TeamBlue, true
	}
	if indexOf(s.red, id) >= 0 {
		return TeamRed, true
	}
	return "", false
}

func (s *Session) HasPlayer(id player.ID) bool {
	_, ok := s.TeamOf(id)
	return ok
}

// FindByGameName resolves an in-game username reported by the host to a
// session member.
func (s *Session) FindByGameName(name string) (player.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.blue {
		if p.GameName == name {
			return p, true
		}
	}
	for _, p := range s.red {
		if p.GameName == name {
			return p, true
		}
	}
	return player.Player{}, false
}

func indexOf(team []player.Player, id player.ID) int {
	for i, p := range team {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// CastScrambleVote records one player's vote to reshuffle the teams. A
// repeat voter is not counted twice. Reaching the quorum reshuffles both
// teams with a fresh seed and clears the vote set; count is the tally after
// this vote.
func (s *Session) CastScrambleVote(id player.ID) (outcome ScrambleOutcome, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrambleVotes[id] {
		return ScrambleAlreadyVoted, len(s.scrambleVotes)
	}
	s.scrambleVotes[id] = true
	if len(s.scrambleVotes) >= s.scrambleQuorum {
		all := append(append([]player.Player{}, s.blue...), s.red...)
		s.blue, s.red = splitTeams(all, s.rng)
		s.scrambleVotes = make(map[player.ID]bool)
		return ScrambleTriggered, 0
	}
	return ScrambleVoteRecorded, len(s.scrambleVotes)
}

func (s *Session) ScrambleQuorum() int { return s.scrambleQuorum }

// SetBuilding moves the session into the building phase. Returns false if
// the session already ended; the caller logs the unexpected transition.
func (s *Session) SetBuilding() bool {
	return s.setPhase(PhaseBuilding)
}

// SetInProgress moves the session into the combat phase. Returns false if
// the session already ended.
func (s *Session) SetInProgress() bool {
	return s.setPhase(PhaseInProgress)
}

func (s *Session) setPhase(ph Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnded {
		return false
	}
	s.phase = ph
	return true
}

// SetTickets stores the host-reported ticket count for a team verbatim.
func (s *Session) SetTickets(team Team, n int) error {
	if n < 0 {
		return ErrBadTickets
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if team == TeamBlue {
		s.blueTickets = n
	} else {
		s.redTickets = n
	}
	return nil
}

// Tickets returns the last reported counts; known is false until the host
// has reported for that team.
func (s *Session) Tickets(team Team) (n int, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team == TeamBlue {
		n = s.blueTickets
	} else {
		n = s.redTickets
	}
	return n, n != ticketsUnknown
}

// RecordResult stores the final outcome, settable exactly once, and moves
// the session to Ended.
func (s *Session) RecordResult(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultSet {
		return fmt.Errorf("%w: %s", ErrResultSet, s.result)
	}
	s.result = r
	s.resultSet = true
	s.phase = PhaseEnded
	return nil
}

// Result returns the recorded outcome; ok is false until one is recorded.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.resultSet
}

// Substitute replaces outgoing with incoming on whichever team outgoing
// belongs to, keeping its slot so team sizes never change.
func (s *Session) Substitute(outgoing player.ID, incoming player.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.blue, incoming.ID) >= 0 || indexOf(s.red, incoming.ID) >= 0 {
		return ErrAlreadyMember
	}
	if i := indexOf(s.blue, outgoing); i >= 0 {
		s.blue[i] = incoming
		delete(s.scrambleVotes, outgoing)
		return nil
	}
	if i := indexOf(s.red, outgoing); i >= 0 {
		s.red[i] = incoming
		delete(s.scrambleVotes, outgoing)
		return nil
	}
	return ErrNotInSession
}
