package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/protocol"
)

type SessionConfig struct {
	URL         string
	SessionID   string
	Role        string
	AgentName   string
	ResumeToken string
}

type sessionUpdate struct {
	ResumeToken     string
	AgentID         string
	LastConnectedAt time.Time
}

type onUpdateFn func(sessionID string, upd sessionUpdate)

// Session owns one websocket to the world server. It dials with backoff,
// replays the hello handshake on every reconnect and keeps the latest
// observation frame for pollers.
type Session struct {
	cfg      SessionConfig
	onUpdate onUpdateFn

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected bool
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID     string
	resumeToken string
	welcome     protocol.WelcomeMsg
	hasWelcome  bool

	lastObs     *protocol.ObsMsg
	lastObsTick uint64
	worldDone   bool

	obsNotify chan struct{}
}

func NewSession(cfg SessionConfig, onUpdate onUpdateFn) *Session {
	return &Session{
		cfg:         cfg,
		onUpdate:    onUpdate,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		resumeToken: cfg.ResumeToken,
		obsNotify:   make(chan struct{}, 1),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Ensure any blocking ReadMessage wakes up promptly.
		s.disconnect()
		<-s.done
	})
}

func (s *Session) disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

func (s *Session) WorldDone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worldDone
}

// WaitWelcome blocks until the handshake completes or the timeout fires.
func (s *Session) WaitWelcome(ctx context.Context, timeout time.Duration) (protocol.WelcomeMsg, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(25 * time.Millisecond)
	defer poll.Stop()
	for {
		s.mu.RLock()
		w, ok := s.welcome, s.hasWelcome
		errMsg := s.lastErr
		s.mu.RUnlock()
		if ok {
			return w, nil
		}
		select {
		case <-ctx.Done():
			return protocol.WelcomeMsg{}, ctx.Err()
		case <-deadline.C:
			if errMsg != "" {
				return protocol.WelcomeMsg{}, fmt.Errorf("no welcome: %s", errMsg)
			}
			return protocol.WelcomeMsg{}, fmt.Errorf("timeout waiting for welcome")
		case <-poll.C:
		}
	}
}

// SendAct writes one ACT frame. Serialized by writeMu so bridge and admin
// paths never interleave a frame.
func (s *Session) SendAct(actID string, commands []string) error {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		Tick:            s.LatestTick(),
		AgentID:         s.AgentID(),
		Commands:        commands,
	}
	return s.send(act)
}

func (s *Session) SendReset() error {
	return s.send(protocol.ResetMsg{
		Type:            protocol.TypeReset,
		ProtocolVersion: protocol.Version,
		AgentID:         s.AgentID(),
	})
}

func (s *Session) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) LatestTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastObsTick
}

func (s *Session) latestObs() (uint64, *protocol.ObsMsg) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastObsTick, s.lastObs
}

// WaitObsAt blocks until a frame with tick >= target arrives. Empty frames
// count; substitution is the repairer's job, not the transport's.
func (s *Session) WaitObsAt(ctx context.Context, target uint64, timeout time.Duration) (*protocol.ObsMsg, uint64, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		t, o := s.latestObs()
		if t >= target && o != nil {
			return o, t, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-deadline.C:
			// One last check after timeout.
			t, o = s.latestObs()
			if t >= target && o != nil {
				return o, t, nil
			}
			return nil, 0, fmt.Errorf("timeout waiting for obs tick %d", target)
		case <-s.obsNotify:
		}
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.disconnect()
			return
		default:
		}

		if err := s.connectAndReadLoop(); err != nil {
			s.mu.Lock()
			s.connected = false
			s.lastErr = err.Error()
			s.mu.Unlock()
			select {
			case <-s.stop:
				s.disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		// Clean exit.
		return
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.SessionID,
		Role:            s.cfg.Role,
		AgentName:       s.cfg.AgentName,
		Capabilities: protocol.HelloCapabilities{
			InfoChannel: true,
			MaxQueue:    64,
		},
	}
	s.mu.RLock()
	rt := strings.TrimSpace(s.resumeToken)
	s.mu.RUnlock()
	hello.ResumeToken = rt

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			now := time.Now()
			s.mu.Lock()
			s.welcome = w
			s.hasWelcome = true
			s.agentID = w.AgentID
			s.resumeToken = w.ResumeToken
			s.connected = true
			s.mu.Unlock()
			if s.onUpdate != nil {
				s.onUpdate(s.cfg.SessionID, sessionUpdate{
					ResumeToken:     w.ResumeToken,
					AgentID:         w.AgentID,
					LastConnectedAt: now,
				})
			}

		case protocol.TypeObs:
			var o protocol.ObsMsg
			if err := json.Unmarshal(msg, &o); err != nil {
				continue
			}
			s.mu.Lock()
			s.lastObs = &o
			s.lastObsTick = o.Tick
			if o.AgentID != "" {
				s.agentID = o.AgentID
			}
			if o.Done {
				s.worldDone = true
			}
			s.mu.Unlock()
			select {
			case s.obsNotify <- struct{}{}:
			default:
			}

		case protocol.TypeBye:
			s.mu.Lock()
			s.worldDone = true
			s.mu.Unlock()
			select {
			case s.obsNotify <- struct{}{}:
			default:
			}
			_ = conn.Close()
			return nil

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			s.mu.Lock()
			s.lastErr = e.Code + ": " + e.Message
			s.mu.Unlock()
		}
	}
}
