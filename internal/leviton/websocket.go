package leviton

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// authTimeout bounds the wait for the service to acknowledge the auth
// handshake after the socket opens.
const authTimeout = 10 * time.Second

// Socket is one push-channel connection. It authenticates with the owning
// client's session token, carries model subscriptions, and dispatches
// incoming notifications to registered handlers from a single read loop.
//
// A Socket is single-use: after Disconnect or a transport failure, create
// a fresh one via Client.NewSocket.
type Socket struct {
	url    string
	token  string
	logger Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	closing     bool
	nextHandler int
	onNotify    map[int]func(Notification)
	onDisc      map[int]func()
}

// NewSocket creates an unconnected push socket bound to the client's
// current session. The client must be logged in first.
func (c *Client) NewSocket() (*Socket, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil, fmt.Errorf("%w: no session for socket", ErrAuth)
	}
	return &Socket{
		url:      c.socketURL,
		token:    token,
		logger:   c.logger,
		onNotify: make(map[int]func(Notification)),
		onDisc:   make(map[int]func()),
	}, nil
}

// OnNotification registers a handler for incoming push notifications and
// returns a function that removes it. Handlers run on the socket's read
// goroutine; they must not block.
func (s *Socket) OnNotification(fn func(Notification)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHandler
	s.nextHandler++
	s.onNotify[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onNotify, id)
	}
}

// OnDisconnect registers a handler fired once when the socket drops
// unexpectedly, and returns a function that removes it. An intentional
// Disconnect never fires these; callers that are about to tear a socket
// down deliberately should remove their handler first regardless, so a
// race with an in-flight transport failure cannot double-trigger recovery.
func (s *Socket) OnDisconnect(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHandler
	s.nextHandler++
	s.onDisc[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onDisc, id)
	}
}

// Connect dials the push endpoint, performs the auth handshake, and starts
// the read loop. Returns ErrAuth if the service rejects the token.
func (s *Socket) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing socket: %w", ErrConnection, err)
	}

	if err := conn.WriteJSON(socketMessage{Type: msgTypeAuth, Token: s.token}); err != nil {
		conn.Close()
		return fmt.Errorf("%w: sending auth: %w", ErrConnection, err)
	}

	// The first status frame answers the handshake.
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	var reply socketMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("%w: reading auth reply: %w", ErrConnection, err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if reply.Type != msgTypeStatus || reply.Status != "ready" {
		conn.Close()
		return fmt.Errorf("%w: socket auth rejected (type=%s status=%s)", ErrAuth, reply.Type, reply.Status)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.closing = false
	s.mu.Unlock()

	go s.readPump(conn)
	return nil
}

// Connected reports whether the socket currently holds a live connection.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Subscribe asks the service to push updates for one model instance.
func (s *Socket) Subscribe(modelName, modelID string) error {
	return s.writeJSON(socketMessage{
		Type:         msgTypeSubscribe,
		ID:           uuid.NewString(),
		Subscription: &subscription{ModelName: modelName, ModelID: modelID},
	})
}

// Unsubscribe stops push updates for one model instance.
func (s *Socket) Unsubscribe(modelName, modelID string) error {
	return s.writeJSON(socketMessage{
		Type:         msgTypeUnsubscribe,
		ID:           uuid.NewString(),
		Subscription: &subscription{ModelName: modelName, ModelID: modelID},
	})
}

func (s *Socket) writeJSON(msg socketMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.conn == nil {
		return ErrSocketClosed
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// Disconnect closes the socket without firing disconnect handlers.
// Safe to call on an already-closed socket.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.closing = true
	s.connected = false
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		// Best-effort close frame; the read loop exits on the closed
		// transport either way.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// readPump owns the connection's read side: it decodes envelopes and fans
// notifications out to handlers until the transport fails or Disconnect
// closes it underneath.
func (s *Socket) readPump(conn *websocket.Conn) {
	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.handleClosed(err)
			return
		}
		switch msg.Type {
		case msgTypeNotification:
			if msg.Notification == nil {
				continue
			}
			for _, fn := range s.notifyHandlers() {
				fn(*msg.Notification)
			}
		case msgTypeStatus:
			s.logger.Debug("socket status", "status", msg.Status)
		default:
			s.logger.Debug("socket message ignored", "type", msg.Type)
		}
	}
}

func (s *Socket) notifyHandlers() []func(Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers := make([]func(Notification), 0, len(s.onNotify))
	for _, fn := range s.onNotify {
		handlers = append(handlers, fn)
	}
	return handlers
}

func (s *Socket) handleClosed(err error) {
	s.mu.Lock()
	intentional := s.closing
	s.connected = false
	s.conn = nil
	handlers := make([]func(), 0, len(s.onDisc))
	for _, fn := range s.onDisc {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	if intentional {
		return
	}
	s.logger.Warn("socket connection lost", "error", err)
	for _, fn := range handlers {
		fn()
	}
}
