package hostlink

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("host link closed")

const dialTimeout = 10 * time.Second

// Key identifies one remote game host, unique across the fleet.
type Key struct {
	Addr string
	Port int
}

func (k Key) String() string {
	return net.JoinHostPort(k.Addr, strconv.Itoa(k.Port))
}

// Status is the connection state of a link.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// EventKind discriminates the events a link delivers to its listeners.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventLine
)

// Event is delivered to every registered listener. Line events carry one
// inbound line and arrive in the order lines were read from the socket.
type Event struct {
	Host Key
	Kind EventKind
	Line string
}

// Listener receives link events. Listeners are called synchronously from
// the link's reader goroutine, so they must not block.
type Listener func(Event)

// Link maintains a durable logical connection to one remote game host
// across physical reconnects. Outbound lines are queued without blocking
// the caller and drained strictly in FIFO order by a writer goroutine; a
// line is removed from the queue only after it has been written, so lines
// unsent at a disconnect are delivered after the next Connect in their
// original order. Connection loss stops both loops and is surfaced as an
// event; reconnecting is the caller's responsibility.
type Link struct {
	key      Key
	password string
	log      *zap.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	queue []string
	conn  net.Conn
	state Status
	gen   int // bumped on every connect/disconnect so stale loops exit
	done  bool

	lmu       sync.Mutex
	listeners []Listener

	// inUse is the orchestrator's exclusive-claim flag. It is read and
	// written only inside the orchestrator's coordinating loop and is
	// deliberately not tied to the connection state.
	inUse bool
}

func New(key Key, password string, log *zap.Logger) *Link {
	l := &Link{
		key:      key,
		password: password,
		log:      log.With(zap.String("host", key.String())),
		state:    StatusDisconnected,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Link) Key() Key { return l.key }

func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Connected() bool { return l.Status() == StatusConnected }

func (l *Link) InUse() bool     { return l.inUse }
func (l *Link) SetInUse(v bool) { l.inUse = v }

// AddListener registers a listener for all subsequent events.
func (l *Link) AddListener(fn Listener) {
	l.lmu.Lock()
	l.listeners = append(l.listeners, fn)
	l.lmu.Unlock()
}

func (l *Link) emit(ev Event) {
	l.lmu.Lock()
	listeners := l.listeners
	l.lmu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Connect establishes a fresh physical connection, tearing down any prior
// one first. The first line sent is the pre-shared credential. A dial or
// handshake failure leaves the link disconnected and is returned to the
// caller; there is no retry loop here.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return ErrClosed
	}
	l.teardownLocked()
	l.state = StatusConnecting
	connectGen := l.gen
	l.mu.Unlock()

	conn, err := net.DialTimeout("tcp", l.key.String(), dialTimeout)
	if err != nil {
		l.mu.Lock()
		if l.gen == connectGen {
			l.state = StatusDisconnected
		}
		l.mu.Unlock()
		return fmt.Errorf("dial %s: %w", l.key, err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", l.password); err != nil {
		conn.Close()
		l.mu.Lock()
		if l.gen == connectGen {
			l.state = StatusDisconnected
		}
		l.mu.Unlock()
		return fmt.Errorf("handshake %s: %w", l.key, err)
	}

	l.mu.Lock()
	if l.done || l.gen != connectGen {
		// Disconnect or another Connect raced us; the result is simply
		// whatever they left behind.
		l.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	l.gen++
	gen := l.gen
	l.conn = conn
	l.state = StatusConnected
	l.cond.Broadcast()
	l.mu.Unlock()

	go l.readLoop(conn, gen)
	go l.writeLoop(conn, gen)
	l.log.Info("host connected")
	l.emit(Event{Host: l.key, Kind: EventConnected})
	return nil
}

// Disconnect stops the reader and writer and closes the socket. Safe to
// call when already disconnected or concurrently with Connect.
func (l *Link) Disconnect() {
	l.mu.Lock()
	wasConnected := l.state == StatusConnected
	l.teardownLocked()
	l.mu.Unlock()
	if wasConnected {
		l.log.Info("host disconnected")
		l.emit(Event{Host: l.key, Kind: EventDisconnected})
	}
}

// Close disconnects and drops any still-queued lines. The link cannot be
// used afterwards.
func (l *Link) Close() {
	l.mu.Lock()
	l.done = true
	if n := len(l.queue); n > 0 {
		l.log.Warn("dropping queued lines on close", zap.Int("count", n))
	}
	l.queue = nil
	l.teardownLocked()
	l.mu.Unlock()
}

func (l *Link) teardownLocked() {
	l.gen++
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.state = StatusDisconnected
	l.cond.Broadcast()
}

// Send queues one line for delivery. It never blocks: lines queued while
// disconnected are delivered once a connection is up, and are only dropped
// by Close.
func (l *Link) Send(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.queue = append(l.queue, line)
	l.cond.Broadcast()
}

// QueueLen reports the number of lines waiting to be written.
func (l *Link) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Say sends a chat message to the players on the host.
func (l *Link) Say(msg string) {
	l.Send(`getNet().server_SendMsg("` + strings.ReplaceAll(msg, `"`, `\"`) + `");`)
}

// ClearGame tells the host to reset its current match.
func (l *Link) ClearGame() {
	l.Send(`getRules().set_bool('clearGame', true);`)
}

func (l *Link) readLoop(conn net.Conn, gen int) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		l.mu.Lock()
		stale := l.gen != gen
		l.mu.Unlock()
		if stale {
			return
		}
		l.emit(Event{Host: l.key, Kind: EventLine, Line: scanner.Text()})
	}
	l.connectionLost(gen, scanner.Err())
}

func (l *Link) writeLoop(conn net.Conn, gen int) {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && l.gen == gen {
			l.cond.Wait()
		}
		if l.gen != gen {
			l.mu.Unlock()
			return
		}
		line := l.queue[0]
		l.mu.Unlock()

		_, err := fmt.Fprintf(conn, "%s\n", line)

		l.mu.Lock()
		if l.gen != gen {
			l.mu.Unlock()
			return
		}
		if err != nil {
			l.mu.Unlock()
			l.connectionLost(gen, err)
			return
		}
		// Pop only after a successful write so an unsent head survives a
		// reconnect at its place in the queue.
		l.queue = l.queue[1:]
		l.mu.Unlock()
	}
}

// connectionLost transitions to disconnected exactly once per physical
// connection; whichever of the two loops fails first wins.
func (l *Link) connectionLost(gen int, err error) {
	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.teardownLocked()
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("host connection lost", zap.Error(err))
	} else {
		l.log.Warn("host closed connection")
	}
	l.emit(Event{Host: l.key, Kind: EventDisconnected})
}
