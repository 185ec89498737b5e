package reader

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// session is the state shared between the receive loop and the liveness
// probe for one connection.
type session struct {
	conn Conn

	mu      sync.Mutex
	stopped bool
	cause   error

	pongs chan string

	stopProbe context.CancelFunc
	probeDone chan struct{}
}

func newSession(conn Conn) *session {
	s := &session{
		conn:  conn,
		pongs: make(chan string, 4),
	}
	conn.SetPongHandler(func(appData string) error {
		select {
		case s.pongs <- appData:
		default:
		}
		return nil
	})
	return s
}

// armDeadline sets the read deadline for the next frame unless the session
// has already been interrupted, in which case the cause is returned.
func (s *session) armDeadline(deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.cause
	}
	return s.conn.SetReadDeadline(deadline)
}

// interrupt stops the receive loop by moving the read deadline into the
// past. Only the first cause is kept.
func (s *session) interrupt(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.cause = cause
	_ = s.conn.SetReadDeadline(time.Unix(1, 0))
}

func (s *session) interruption() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		return nil
	}
	return s.cause
}

// startProbe runs the liveness probe until the returned session is closed
// or the probe fails.
func (s *session) startProbe(ctx context.Context, interval, pongTimeout, writeTimeout time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.stopProbe = cancel
	s.probeDone = make(chan struct{})
	go s.probe(ctx, interval, pongTimeout, writeTimeout)
}

// haltProbe cancels the probe and waits for it to return.
func (s *session) haltProbe() {
	if s.stopProbe == nil {
		return
	}
	s.stopProbe()
	<-s.probeDone
}

// probe waits interval, pings, and expects the echoed pong within
// pongTimeout. Each ping carries a sequence number so a late pong from an
// earlier round is not mistaken for the current one.
func (s *session) probe(ctx context.Context, interval, pongTimeout, writeTimeout time.Duration) {
	defer close(s.probeDone)

	wait := time.NewTimer(interval)
	defer wait.Stop()

	for seq := uint64(1); ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}

		payload := strconv.FormatUint(seq, 10)
		if err := s.conn.WriteControl(websocket.PingMessage, []byte(payload), time.Now().Add(writeTimeout)); err != nil {
			if ctx.Err() == nil {
				s.interrupt(fmt.Errorf("%w: ping: %v", ErrProbeFailed, err))
			}
			return
		}

		if !s.awaitPong(ctx, payload, pongTimeout) {
			if ctx.Err() == nil {
				s.interrupt(fmt.Errorf("%w: no pong within %s", ErrProbeFailed, pongTimeout))
			}
			return
		}
		wait.Reset(interval)
	}
}

func (s *session) awaitPong(ctx context.Context, payload string, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case got := <-s.pongs:
			if got == payload {
				return true
			}
		}
	}
}
