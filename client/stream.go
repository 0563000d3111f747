// Package client is the sync core: per-host event streams, the connection
// registry that owns them, and the reconcilers that fold pushed events and
// request/response results into queryable in-memory snapshots.
package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/ItsKorayYT/antarcticom/internal/protocol"
)

// StreamState is the lifecycle state of an event stream.
type StreamState string

const (
	StreamDisconnected StreamState = "disconnected"
	StreamConnecting   StreamState = "connecting"
	StreamConnected    StreamState = "connected"
	StreamReconnecting StreamState = "reconnecting"
)

const (
	maxBackoff       = 30 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
	subscriberBuffer = 256
)

// backoff tracks consecutive connection failures. Next counts a failure
// and yields the delay before the retry: 1s doubling per failure, capped
// at 30s. Reset starts the progression over once a frame gets through.
type backoff struct {
	attempt int
}

func (b *backoff) Next() time.Duration {
	b.attempt++
	if b.attempt > 6 {
		// 2^5 already exceeds the cap
		return maxBackoff
	}
	d := time.Duration(1<<(b.attempt-1)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (b *backoff) Reset() {
	b.attempt = 0
}

// EventsPath is where hosts serve the push-event websocket.
const EventsPath = "/api/events"

// wsURL converts a normalized http(s) origin into the websocket endpoint.
func wsURL(origin string) string {
	switch {
	case strings.HasPrefix(origin, "https://"):
		return "wss://" + strings.TrimPrefix(origin, "https://") + EventsPath
	case strings.HasPrefix(origin, "http://"):
		return "ws://" + strings.TrimPrefix(origin, "http://") + EventsPath
	default:
		return "ws://" + origin + EventsPath
	}
}

// Subscription is one consumer's cursor over a stream's event sequence.
// Events arrive in transport order; a subscriber that falls behind has
// events dropped rather than stalling the stream.
type Subscription struct {
	stream *Stream
	ch     chan *protocol.Event
	once   sync.Once
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan *protocol.Event {
	return s.ch
}

// Close detaches the subscription from the stream. Safe to call multiple
// times; the event channel is closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.stream.subsMu.Lock()
		delete(s.stream.subs, s)
		s.stream.subsMu.Unlock()
		close(s.ch)
	})
}

// Stream maintains exactly one push-event connection to a single host and
// fans the decoded events out to any number of subscriptions. Transport
// failures never surface to callers; they drive the silent reconnect loop.
type Stream struct {
	origin string
	dialer *websocket.Dialer

	mu     sync.Mutex
	token  string
	cancel context.CancelFunc // cancels the current run loop, nil when down
	conn   *websocket.Conn    // current transport, nil unless connected
	state  StreamState

	// writeMu serializes frame writes; the transport allows one writer.
	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[*Subscription]struct{}
}

// NewStream creates a stream for the host at the given normalized origin.
// The stream is created disconnected; call Connect to bring it up.
func NewStream(origin string) *Stream {
	return &Stream{
		origin: origin,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		state: StreamDisconnected,
		subs:  make(map[*Subscription]struct{}),
	}
}

// Origin returns the host origin this stream is bound to.
func (s *Stream) Origin() string {
	return s.origin
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the transport is currently up and identified.
func (s *Stream) Connected() bool {
	return s.State() == StreamConnected
}

// Active reports whether the run loop is up, connected or between retries.
// An active stream holds a credential that a swap must replace; an
// inactive one gets its token on the next Connect.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Subscribe attaches a new independent cursor to the event sequence.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{
		stream: s,
		ch:     make(chan *protocol.Event, subscriberBuffer),
	}
	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
	return sub
}

func (s *Stream) broadcast(ev *protocol.Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			glog.V(1).Infof("dropping %s event for slow subscriber on %s", ev.Type, s.origin)
		}
	}
}

// Connect brings the stream up with the given credential. Calling it again
// with an identical credential while the loop is running is a no-op; a
// different credential tears the current connection down and reopens with
// the new one as a single atomic step. Transport failures are not
// returned; they feed the reconnect loop.
func (s *Stream) Connect(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		if s.token == token {
			return
		}
		s.cancel()
		s.closeConnLocked(websocket.CloseNormalClosure)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.token = token
	s.cancel = cancel
	s.state = StreamConnecting
	go s.run(ctx, token)
}

// Disconnect closes the transport with a normal-closure code and cancels
// any pending reconnect, atomically; no reconnect may race a deliberate
// disconnect. Safe to call multiple times.
func (s *Stream) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closeConnLocked(websocket.CloseNormalClosure)
	s.state = StreamDisconnected
}

func (s *Stream) closeConnLocked(code int) {
	if s.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	s.conn.WriteMessage(websocket.CloseMessage, msg)
	s.writeMu.Unlock()
	s.conn.Close()
	s.conn = nil
}

// Send writes an envelope to the host, best effort: if the transport is
// not currently up the frame is dropped without error or queuing.
func (s *Stream) Send(env *protocol.Envelope) {
	raw, err := env.MarshalFrame()
	if err != nil {
		glog.Errorf("failed to encode %s frame: %v", env.Type, err)
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		glog.V(2).Infof("dropping %s frame, %s not connected", env.Type, s.origin)
		return
	}
	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, raw)
	s.writeMu.Unlock()
	if err != nil {
		glog.V(1).Infof("write to %s failed: %v", s.origin, err)
	}
}

// run is the connect/read/reconnect loop. It exits only when its context
// is canceled, which happens on Disconnect or on a credential swap.
func (s *Stream) run(ctx context.Context, token string) {
	var retry backoff
	for {
		conn, err := s.dial(ctx, token)
		if err == nil {
			s.mu.Lock()
			if ctx.Err() != nil {
				s.mu.Unlock()
				conn.Close()
				return
			}
			s.conn = conn
			s.state = StreamConnected
			s.mu.Unlock()
			glog.Infof("event stream up: %s", s.origin)

			s.readLoop(ctx, conn, &retry)

			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			conn.Close()
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		delay := retry.Next()
		s.mu.Lock()
		// Disconnect holds the lock while canceling, so a canceled ctx
		// here means the terminal state is already set; leave it alone.
		if ctx.Err() == nil {
			s.state = StreamReconnecting
		}
		s.mu.Unlock()
		glog.Infof("event stream down: %s, retrying in %s", s.origin, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// dial opens the transport and sends the identify frame before any other
// traffic.
func (s *Stream) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, wsURL(s.origin), nil)
	if err != nil {
		return nil, err
	}

	identify, err := protocol.Identify(token).MarshalFrame()
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, identify); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// readLoop consumes frames until the transport fails or ctx is canceled.
// Any successfully parsed frame resets the retry progression. A ping
// ticker keeps the connection alive while reads are idle.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, retry *backoff) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				s.writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				s.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.V(1).Infof("read from %s failed: %v", s.origin, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, err := protocol.DecodeEvent(raw)
		if err != nil {
			// Malformed frame: drop it, keep the stream alive.
			glog.Infof("failed to parse frame from %s: %v", s.origin, err)
			continue
		}
		retry.Reset()
		s.broadcast(ev)
	}
}
