package reader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	appconfig "bookfeed/config"
	"bookfeed/internal/endpoint"
	"bookfeed/internal/metrics"
	"bookfeed/internal/pipeline/normalizer"
	"bookfeed/internal/symbols"
	"bookfeed/logger"
	"bookfeed/models"
	"bookfeed/writer"
)

var (
	ErrDial           = errors.New("dial failed")
	ErrSubscribe      = errors.New("subscribe failed")
	ErrReceiveTimeout = errors.New("receive timeout")
	ErrProbeFailed    = errors.New("liveness probe failed")
	ErrRead           = errors.New("read failed")
)

// Publisher accepts validated snapshots in wire order.
type Publisher interface {
	Publish(snap *models.Snapshot) writer.Result
}

// Supervisor owns one connection at a time and drives it through
// CONNECTING, SUBSCRIBING, STREAMING and CLOSING.
type Supervisor struct {
	receiveTimeout time.Duration
	pingInterval   time.Duration
	pongTimeout    time.Duration
	writeTimeout   time.Duration

	dialer     Dialer
	translator *normalizer.Translator
	publisher  Publisher
	latency    *metrics.LatencyRing
	log        *logger.Log
	now        func() time.Time

	state   atomic.Int32
	onState func(State)
	// trace receives lifecycle events; used by tests to check ordering.
	trace func(event string)
}

// NewSupervisor builds a supervisor from the reader settings. latency may be
// nil.
func NewSupervisor(cfg appconfig.ReaderConfig, dialer Dialer, publisher Publisher, latency *metrics.LatencyRing) *Supervisor {
	s := &Supervisor{
		receiveTimeout: cfg.ReceiveTimeout,
		pingInterval:   cfg.PingInterval,
		pongTimeout:    cfg.PongTimeout,
		writeTimeout:   cfg.WriteTimeout,
		dialer:         dialer,
		translator:     normalizer.NewTranslator(),
		publisher:      publisher,
		latency:        latency,
		log:            logger.GetLogger(),
		now:            time.Now,
	}
	if s.receiveTimeout <= 0 {
		s.receiveTimeout = 30 * time.Second
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 5 * time.Second
	}
	if s.pongTimeout <= 0 {
		s.pongTimeout = 5 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = s.pongTimeout
	}
	return s
}

// OnStateChange registers f to be called on every state transition.
func (s *Supervisor) OnStateChange(f func(State)) {
	s.onState = f
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Supervisor) emit(event string) {
	if s.trace != nil {
		s.trace(event)
	}
}

// Run performs one connection cycle against ep and always returns in
// DISCONNECTED. onStreaming is called once the subscription is sent. The
// returned error describes why the cycle ended; it is nil only when ctx was
// cancelled.
func (s *Supervisor) Run(ctx context.Context, ep endpoint.Endpoint, symbol string, onStreaming func()) (err error) {
	wire := symbols.Normalize(symbol, ep.Family)
	url := ep.URL(wire)
	log := s.log.WithComponent("supervisor").WithFields(logger.Fields{
		"family":  string(ep.Family),
		"url":     url,
		"conn_id": uuid.NewString(),
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("connection cycle panicked")
			err = fmt.Errorf("connection cycle panicked: %v", r)
			s.setState(StateDisconnected)
		}
	}()

	s.setState(StateConnecting)
	log.Info("connecting")
	conn, dialErr := s.dialer.Dial(ctx, url)
	if dialErr != nil {
		s.setState(StateClosing)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrDial, url, dialErr)
	}

	sess := newSession(conn)
	stopShutdown := context.AfterFunc(ctx, func() {
		sess.interrupt(ctx.Err())
	})
	defer func() {
		stopShutdown()
		s.closeSession(sess, log)
	}()

	s.setState(StateSubscribing)
	frame, subErr := SubscriptionFrame(ep.Family, wire)
	if subErr == nil && frame != nil {
		_ = conn.SetWriteDeadline(s.now().Add(s.writeTimeout))
		subErr = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if subErr != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSubscribe, subErr)
	}
	if frame != nil {
		log.WithField("frame", string(frame)).Debug("subscription sent")
	}

	s.setState(StateStreaming)
	metrics.IncrementStreamingSession()
	log.Info("streaming")
	if onStreaming != nil {
		onStreaming()
	}

	sess.startProbe(ctx, s.pingInterval, s.pongTimeout, s.writeTimeout)
	return s.receive(ctx, sess, ep, symbol, log)
}

// receive reads frames until the connection fails, the probe interrupts it
// or ctx is cancelled.
func (s *Supervisor) receive(ctx context.Context, sess *session, ep endpoint.Endpoint, symbol string, log *logger.Entry) error {
	for {
		if err := sess.armDeadline(s.now().Add(s.receiveTimeout)); err != nil {
			return s.classify(ctx, sess, err)
		}
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return s.classify(ctx, sess, err)
		}
		s.handleFrame(ep, symbol, msgType, data, log)
	}
}

func (s *Supervisor) classify(ctx context.Context, sess *session, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if cause := sess.interruption(); cause != nil {
		return cause
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: no frame within %s", ErrReceiveTimeout, s.receiveTimeout)
	}
	return fmt.Errorf("%w: %v", ErrRead, err)
}

// handleFrame translates and publishes one frame. Frames that cannot be
// used are counted and skipped; the connection stays up.
func (s *Supervisor) handleFrame(ep endpoint.Endpoint, symbol string, msgType int, data []byte, log *logger.Entry) {
	if msgType == websocket.BinaryMessage {
		if inflated, err := inflate(data); err == nil {
			data = inflated
		}
	}
	metrics.IncrementFrameReceived(string(ep.Family), len(data))

	snap, err := s.translator.Translate(ep.Family, data)
	if err != nil {
		metrics.IncrementFrameInvalid()
		metrics.EmitDropMetric(s.log, metrics.DropMetricUndecodable, string(ep.Family), ep.URLTemplate, symbol, "decode")
		log.WithError(err).Debug("discarding undecodable frame")
		return
	}
	if snap == nil {
		metrics.IncrementFrameIgnored()
		return
	}
	if err := normalizer.Validate(snap); err != nil {
		metrics.IncrementFrameInvalid()
		metrics.EmitDropMetric(s.log, metrics.DropMetricInvalid, string(ep.Family), ep.URLTemplate, symbol, "validate")
		log.WithError(err).Debug("discarding invalid snapshot")
		return
	}

	snap.Stamp(s.now())
	if s.latency != nil {
		s.latency.Add(snap.Latency())
	}
	if s.publisher != nil {
		s.publisher.Publish(snap)
	}
}

// closeSession stops the probe before touching the transport, then sends a
// close frame and closes the connection.
func (s *Supervisor) closeSession(sess *session, log *logger.Entry) {
	s.setState(StateClosing)

	sess.haltProbe()
	s.emit("probe_stopped")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := sess.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout)); err != nil {
		log.WithError(err).Debug("close frame not sent")
	}
	if err := sess.conn.Close(); err != nil {
		log.WithError(err).Warn("failed to close connection")
	}
	s.emit("transport_closed")

	s.setState(StateDisconnected)
	log.Info("disconnected")
}
