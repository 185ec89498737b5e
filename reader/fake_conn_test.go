package reader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bookfeed/models"
	"bookfeed/writer"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type inbound struct {
	msgType int
	data    []byte
}

// fakeConn is an in-memory Conn. Queued frames are returned in order; once
// they run out ReadMessage blocks until the read deadline passes.
type fakeConn struct {
	mu          sync.Mutex
	frames      chan inbound
	deadline    time.Time
	kick        chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	pongHandler func(string) error

	echoPongs bool
	writeErr  error

	written        [][]byte
	pings          int
	pingAfterClose bool
	closeFrames    int
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{
		frames: make(chan inbound, len(frames)+8),
		kick:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- inbound{msgType: websocket.TextMessage, data: []byte(f)}
	}
	return c
}

func (c *fakeConn) push(msgType int, data []byte) {
	c.frames <- inbound{msgType: msgType, data: data}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		deadline := c.deadline
		c.mu.Unlock()

		select {
		case <-c.closed:
			return 0, nil, errors.New("use of closed connection")
		default:
		}

		var timer *time.Timer
		var expired <-chan time.Time
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, nil, timeoutError{}
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		select {
		case f := <-c.frames:
			stopTimer(timer)
			return f.msgType, f.data, nil
		case <-expired:
			return 0, nil, timeoutError{}
		case <-c.kick:
			stopTimer(timer)
		case <-c.closed:
			stopTimer(timer)
			return 0, nil, errors.New("use of closed connection")
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	isClosed := c.isClosed()
	switch messageType {
	case websocket.PingMessage:
		c.pings++
		if isClosed {
			c.pingAfterClose = true
		}
	case websocket.CloseMessage:
		c.closeFrames++
	}
	handler := c.pongHandler
	echo := c.echoPongs
	c.mu.Unlock()

	if isClosed {
		return websocket.ErrCloseSent
	}
	if messageType == websocket.PingMessage && echo && handler != nil {
		_ = handler(string(data))
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pongHandler = h
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) snapshot() (written [][]byte, pings int, pingAfterClose bool, closeFrames int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written, c.pings, c.pingAfterClose, c.closeFrames
}

type dialFunc func(ctx context.Context, url string) (Conn, error)

func (f dialFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

func connDialer(conn Conn) Dialer {
	return dialFunc(func(context.Context, string) (Conn, error) { return conn, nil })
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
	onPub func(*models.Snapshot)
}

func (p *recordingPublisher) Publish(snap *models.Snapshot) writer.Result {
	p.mu.Lock()
	p.snaps = append(p.snaps, snap)
	onPub := p.onPub
	p.mu.Unlock()
	if onPub != nil {
		onPub(snap)
	}
	return writer.Published
}

func (p *recordingPublisher) published() []*models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Snapshot(nil), p.snaps...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
