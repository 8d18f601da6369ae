package gather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/queue"
	"github.com/kaggather/gatherd/internal/session"
	"github.com/kaggather/gatherd/internal/sub"
)

var ErrSessionNotFound = errors.New("no such session")
var ErrHostNotFound = errors.New("no such host")

// ResultSaver is the storage collaborator. Failures are logged and degrade
// the scoreboard; they never abort queue or session operations.
type ResultSaver interface {
	SaveResult(sessionID int64, blue, red []player.Player, winner session.Result) error
}

// Options configures an Orchestrator.
type Options struct {
	QueueSize      int
	ScrambleQuorum int // 0 means simple majority of session players
	SubQuorum      int // 0 means the registry default
	Seed           func() int64
}

type liveSession struct {
	sess *session.Session
	link *hostlink.Link // nil when the session started unbound
}

// Orchestrator is the top-level coordinator. It owns the waiting pool, the
// host links, the live sessions and the substitution registry, and runs a
// single loop over a typed-message inbox so all of that shared state is
// mutated from one place. The loop never waits on network I/O: outbound
// host commands are fire-and-forget into a link's queue, host dials and
// teardown run on their own goroutines, and so do storage writes.
type Orchestrator struct {
	log  *zap.Logger
	opts Options

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc

	pool     *queue.Pool
	links    []*hostlink.Link
	sessions []*liveSession
	subs     *sub.Registry
	store    ResultSaver // may be nil

	nextID      int64
	subscribers map[string]chan Notice
}

func New(parent context.Context, opts Options, links []*hostlink.Link, store ResultSaver, log *zap.Logger) *Orchestrator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10
	}
	if opts.Seed == nil {
		opts.Seed = func() int64 { return time.Now().UnixNano() }
	}
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		log:         log,
		opts:        opts,
		inbox:       make(chan Msg, 256),
		ctx:         ctx,
		cancel:      cancel,
		pool:        queue.NewPool(opts.QueueSize),
		links:       links,
		subs:        sub.NewRegistry(opts.SubQuorum),
		store:       store,
		nextID:      1,
		subscribers: make(map[string]chan Notice),
	}
	for _, l := range links {
		l.AddListener(func(ev hostlink.Event) {
			select {
			case o.inbox <- hostEventMsg{Event: ev}:
			case <-o.ctx.Done():
			}
		})
	}
	go o.loop()
	return o
}

// ConnectHosts dials every configured host once. Reconnection after a loss
// is driven by the admin connect operation, not a background retry loop.
func (o *Orchestrator) ConnectHosts() {
	for _, l := range o.links {
		if err := l.Connect(); err != nil {
			o.log.Warn("initial host connect failed", zap.String("host", l.Key().String()), zap.Error(err))
		}
	}
}

func (o *Orchestrator) Shutdown() { o.cancel() }

func (o *Orchestrator) loop() {
	for {
		select {
		case <-o.ctx.Done():
			for id, ch := range o.subscribers {
				close(ch)
				delete(o.subscribers, id)
			}
			return

		case m := <-o.inbox:
			switch msg := m.(type) {
			case joinMsg:
				msg.Reply <- o.handleJoin(msg.Player)
			case leaveMsg:
				msg.Reply <- o.pool.Leave(msg.ID)
			case interestMsg:
				msg.Reply <- o.pool.ToggleInterested(msg.ID)
			case setCapacityMsg:
				msg.Reply <- o.pool.SetCapacity(msg.N)
			case scrambleMsg:
				msg.Reply <- o.handleScramble(msg.ID)
			case takeSubSlotMsg:
				msg.Reply <- o.handleTakeSubSlot(msg.Player)
			case endSessionMsg:
				msg.Reply <- o.handleEndSession(msg.SessionID, msg.Winner)
			case hostEventMsg:
				o.handleHostEvent(msg.Event)
			case connectHostMsg:
				if l := o.findLink(msg.Host); l == nil {
					msg.Reply <- ErrHostNotFound
				} else {
					// Dial off the loop: the link is internally
					// synchronized, and a slow host must not stall
					// joins and event routing behind its timeout.
					go func() { msg.Reply <- l.Connect() }()
				}
			case disconnectHostMsg:
				if l := o.findLink(msg.Host); l == nil {
					msg.Reply <- ErrHostNotFound
				} else {
					go func() { l.Disconnect(); msg.Reply <- nil }()
				}
			case queueQueryMsg:
				msg.Reply <- QueueView{
					Players:    o.pool.Contents(),
					Capacity:   o.pool.Capacity(),
					Interested: o.pool.Interested(),
				}
			case sessionsQueryMsg:
				msg.Reply <- o.sessionViews()
			case subscribeMsg:
				o.subscribers[msg.ID] = msg.Outbox
			case unsubscribeMsg:
				if ch, ok := o.subscribers[msg.ID]; ok {
					close(ch)
					delete(o.subscribers, msg.ID)
				}
			}
		}
	}
}

func (o *Orchestrator) handleJoin(p player.Player) JoinOutcome {
	if o.findPlayersSession(p.ID) != nil {
		return JoinOutcome{Status: JoinAlreadyInGame, QueueLen: o.pool.Len(), Capacity: o.pool.Capacity()}
	}
	res := o.pool.Join(p)
	out := JoinOutcome{QueueLen: o.pool.Len(), Capacity: o.pool.Capacity()}
	switch res {
	case queue.AlreadyQueued:
		out.Status = JoinAlreadyQueued
	case queue.PoolFull:
		out.Status = JoinPoolBusy
	case queue.Added:
		out.Status = JoinAdded
		o.broadcast(Notice{Type: "queue", Text: fmt.Sprintf("%s added to the queue (%d/%d)", p, out.QueueLen, out.Capacity)})
	case queue.AddedAndFull:
		out.Status = JoinStartedSession
		o.broadcast(Notice{Type: "queue", Text: fmt.Sprintf("%s added to the queue (%d/%d)", p, out.QueueLen, out.Capacity)})
		sess := o.spawnSession()
		out.SessionID = sess.ID()
		out.QueueLen = 0
	}
	return out
}

// spawnSession snapshots the full pool into a new session, claims a free
// host link if one exists, and flushes the start banner and both rosters
// through the link in that exact order.
func (o *Orchestrator) spawnSession() *session.Session {
	players := o.pool.SnapshotAndClear()
	link := o.freeLink()
	id := o.nextID
	o.nextID++

	sess := session.New(id, players, o.opts.Seed(), o.opts.ScrambleQuorum)
	o.sessions = append(o.sessions, &liveSession{sess: sess, link: link})

	blue, red := sess.Roster()
	if link != nil {
		link.SetInUse(true)
		link.Say(fmt.Sprintf("Gather game #%d starting:", id))
		link.Say("Blue: " + rosterString(blue))
		link.Say("Red: " + rosterString(red))
	} else {
		// Starting unbound is allowed but an operational defect: sends
		// for this session are no-ops until it ends.
		o.log.Warn("no free host for new session, starting unbound", zap.Int64("session", id))
	}

	o.broadcast(Notice{Type: "session_start", SessionID: id, Text: fmt.Sprintf("Gather game #%d starting:", id)})
	o.broadcast(Notice{Type: "roster", SessionID: id, Text: "Blue: " + rosterString(blue)})
	o.broadcast(Notice{Type: "roster", SessionID: id, Text: "Red: " + rosterString(red)})
	o.log.Info("session started",
		zap.Int64("session", id),
		zap.String("blue", rosterString(blue)),
		zap.String("red", rosterString(red)),
		zap.Bool("bound", link != nil))
	return sess
}

func (o *Orchestrator) freeLink() *hostlink.Link {
	for _, l := range o.links {
		if !l.InUse() {
			return l
		}
	}
	return nil
}

func (o *Orchestrator) findPlayersSession(id player.ID) *liveSession {
	for _, ls := range o.sessions {
		if ls.sess.HasPlayer(id) {
			return ls
		}
	}
	return nil
}

func (o *Orchestrator) findSession(id int64) *liveSession {
	for _, ls := range o.sessions {
		if ls.sess.ID() == id {
			return ls
		}
	}
	return nil
}

func (o *Orchestrator) findLinkSession(key hostlink.Key) *liveSession {
	for _, ls := range o.sessions {
		if ls.link != nil && ls.link.Key() == key {
			return ls
		}
	}
	return nil
}

func (o *Orchestrator) findLink(key hostlink.Key) *hostlink.Link {
	for _, l := range o.links {
		if l.Key() == key {
			return l
		}
	}
	return nil
}

func (o *Orchestrator) handleScramble(id player.ID) ScrambleOutcome {
	ls := o.findPlayersSession(id)
	if ls == nil {
		return ScrambleOutcome{Status: ScrambleNoGame}
	}
	quorum := ls.sess.ScrambleQuorum()
	outcome, count := ls.sess.CastScrambleVote(id)
	switch outcome {
	case session.ScrambleAlreadyVoted:
		return ScrambleOutcome{Status: ScrambleAlreadyVoted, Votes: count, Quorum: quorum}
	case session.ScrambleTriggered:
		blue, red := ls.sess.Roster()
		if ls.link != nil {
			ls.link.Say("Teams have been shuffled!")
			ls.link.Say("Blue: " + rosterString(blue))
			ls.link.Say("Red: " + rosterString(red))
		}
		o.broadcast(Notice{Type: "scramble", SessionID: ls.sess.ID(), Text: "Teams have been shuffled!"})
		o.broadcast(Notice{Type: "roster", SessionID: ls.sess.ID(), Text: "Blue: " + rosterString(blue)})
		o.broadcast(Notice{Type: "roster", SessionID: ls.sess.ID(), Text: "Red: " + rosterString(red)})
		o.log.Info("teams shuffled", zap.Int64("session", ls.sess.ID()))
		return ScrambleOutcome{Status: ScrambleShuffled, Quorum: quorum}
	default:
		return ScrambleOutcome{Status: ScrambleCounted, Votes: count, Quorum: quorum}
	}
}

func (o *Orchestrator) handleTakeSubSlot(p player.Player) SubSlotOutcome {
	if o.findPlayersSession(p.ID) != nil {
		return SubSlotOutcome{Status: SubSlotAlreadyInGame}
	}
	sessionID, target, ok := o.subs.AnyFulfilled()
	if !ok {
		return SubSlotOutcome{Status: SubSlotNoRequest}
	}
	ls := o.findSession(sessionID)
	if ls == nil {
		// Session ended between fulfillment and now; registry entries are
		// cleared on end, so just report no request.
		o.subs.Resolve(sessionID, target)
		return SubSlotOutcome{Status: SubSlotNoRequest}
	}
	outgoing, found := findMember(ls.sess, target)
	if !found {
		o.subs.Resolve(sessionID, target)
		return SubSlotOutcome{Status: SubSlotNoRequest}
	}
	if err := ls.sess.Substitute(target, p); err != nil {
		o.log.Warn("substitution failed", zap.Int64("session", sessionID), zap.Error(err))
		o.subs.Resolve(sessionID, target)
		return SubSlotOutcome{Status: SubSlotNoRequest}
	}
	o.subs.Resolve(sessionID, target)
	// A substitute gives up their queue slot when they enter a game.
	o.pool.Leave(p.ID)
	team, _ := ls.sess.TeamOf(p.ID)
	if ls.link != nil {
		ls.link.Say(fmt.Sprintf("%s is substituting in for %s on %s team", p.GameName, outgoing.GameName, team))
	}
	o.broadcast(Notice{Type: "sub", SessionID: sessionID,
		Text: fmt.Sprintf("%s has substituted in for %s", p, outgoing)})
	o.log.Info("player substituted",
		zap.Int64("session", sessionID),
		zap.String("in", p.GameName),
		zap.String("out", outgoing.GameName))
	return SubSlotOutcome{Status: SubSlotTaken, SessionID: sessionID, Outgoing: outgoing}
}

func (o *Orchestrator) handleEndSession(id int64, winner session.Result) error {
	ls := o.findSession(id)
	if ls == nil {
		return ErrSessionNotFound
	}
	o.endSession(ls, winner)
	return nil
}

func (o *Orchestrator) endSession(ls *liveSession, winner session.Result) {
	id := ls.sess.ID()
	if err := ls.sess.RecordResult(winner); err != nil {
		o.log.Warn("recording result", zap.Int64("session", id), zap.Error(err))
	}
	if ls.link != nil {
		ls.link.ClearGame()
		ls.link.SetInUse(false)
	}
	for i, other := range o.sessions {
		if other == ls {
			o.sessions = append(o.sessions[:i], o.sessions[i+1:]...)
			break
		}
	}
	o.subs.ClearSession(id)
	o.broadcast(Notice{Type: "session_end", SessionID: id,
		Text: fmt.Sprintf("Game #%d has ended, %s", id, resultText(winner))})
	o.log.Info("session ended", zap.Int64("session", id), zap.String("result", string(winner)))

	if o.store != nil && winner != session.ResultNone {
		blue, red := ls.sess.Roster()
		go func() {
			if err := o.store.SaveResult(id, blue, red, winner); err != nil {
				o.log.Warn("saving result, scoreboard will be stale", zap.Int64("session", id), zap.Error(err))
			}
		}()
	}
}

func (o *Orchestrator) sessionViews() []SessionView {
	views := make([]SessionView, 0, len(o.sessions))
	for _, ls := range o.sessions {
		blue, red := ls.sess.Roster()
		v := SessionView{
			ID:          ls.sess.ID(),
			Phase:       ls.sess.Phase(),
			Blue:        blue,
			Red:         red,
			BlueTickets: -1,
			RedTickets:  -1,
			PendingSubs: o.subs.PendingTargets(ls.sess.ID()),
		}
		if n, ok := ls.sess.Tickets(session.TeamBlue); ok {
			v.BlueTickets = n
		}
		if n, ok := ls.sess.Tickets(session.TeamRed); ok {
			v.RedTickets = n
		}
		if ls.link != nil {
			v.Host = ls.link.Key().String()
			v.HostConnected = ls.link.Connected()
		}
		views = append(views, v)
	}
	return views
}

// broadcast fans a notice out to every feed subscriber. A subscriber whose
// outbox is full is dropped rather than allowed to stall the loop.
func (o *Orchestrator) broadcast(n Notice) {
	for id, ch := range o.subscribers {
		select {
		case ch <- n:
		default:
			close(ch)
			delete(o.subscribers, id)
		}
	}
}

func rosterString(team []player.Player) string {
	names := make([]string, len(team))
	for i, p := range team {
		names[i] = p.GameName
	}
	return strings.Join(names, " ")
}

func resultText(r session.Result) string {
	switch r {
	case session.ResultBlueWin:
		return "blue team won!"
	case session.ResultRedWin:
		return "red team won!"
	case session.ResultDraw:
		return "its a draw!"
	default:
		return "no scores given"
	}
}

func findMember(s *session.Session, id player.ID) (player.Player, bool) {
	for _, p := range s.Players() {
		if p.ID == id {
			return p, true
		}
	}
	return player.Player{}, false
}
