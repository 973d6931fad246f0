package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WSEnv adapts the websocket world protocol to the Environment interface.
// One Session per session ID; resume tokens persist across reconnects so a
// dead agent rejoins with the same identity.
type WSEnv struct {
	URL            string
	AgentName      string
	StepTimeout    time.Duration
	WelcomeTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	tokens   map[string]string
}

func NewWSEnv(url, agentName string) *WSEnv {
	return &WSEnv{
		URL:            url,
		AgentName:      agentName,
		StepTimeout:    10 * time.Second,
		WelcomeTimeout: 10 * time.Second,
		sessions:       map[string]*Session{},
		tokens:         map[string]string{},
	}
}

func (e *WSEnv) Connect(ctx context.Context, sessionID, role string) (Handle, error) {
	e.mu.Lock()
	if old, ok := e.sessions[sessionID]; ok {
		// Rejoin path: drop the dead socket, dial fresh with the stored
		// resume token.
		delete(e.sessions, sessionID)
		e.mu.Unlock()
		old.Close()
		e.mu.Lock()
	}
	s := NewSession(SessionConfig{
		URL:         e.URL,
		SessionID:   sessionID,
		Role:        role,
		AgentName:   e.AgentName,
		ResumeToken: e.tokens[sessionID],
	}, e.storeToken)
	e.sessions[sessionID] = s
	e.mu.Unlock()

	s.Start()
	w, err := s.WaitWelcome(ctx, e.WelcomeTimeout)
	if err != nil {
		e.mu.Lock()
		delete(e.sessions, sessionID)
		e.mu.Unlock()
		s.Close()
		return Handle{}, fmt.Errorf("connect %s: %w", sessionID, err)
	}
	return Handle{
		SessionID:      sessionID,
		AgentID:        w.AgentID,
		Spawn:          w.WorldParams.SpawnPos,
		BoundaryRadius: w.WorldParams.BoundaryRadius,
	}, nil
}

func (e *WSEnv) storeToken(sessionID string, upd sessionUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if upd.ResumeToken != "" {
		e.tokens[sessionID] = upd.ResumeToken
	}
}

func (e *WSEnv) session(sessionID string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no session %s", sessionID)
	}
	return s, nil
}

func (e *WSEnv) Step(ctx context.Context, h Handle, commands []string) (StepResult, error) {
	s, err := e.session(h.SessionID)
	if err != nil {
		return StepResult{}, err
	}
	target := s.LatestTick() + 1
	if len(commands) > 0 {
		target = s.LatestTick() + uint64(len(commands))
		if err := s.SendAct(uuid.NewString(), commands); err != nil {
			return StepResult{}, fmt.Errorf("act: %w", err)
		}
	}
	o, tick, err := s.WaitObsAt(ctx, target, e.StepTimeout)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Obs: o, Tick: tick, Done: o.Done || s.WorldDone()}, nil
}

func (e *WSEnv) Reset(ctx context.Context, h Handle) error {
	s, err := e.session(h.SessionID)
	if err != nil {
		return err
	}
	return s.SendReset()
}

func (e *WSEnv) Close(h Handle) error {
	e.mu.Lock()
	s, ok := e.sessions[h.SessionID]
	delete(e.sessions, h.SessionID)
	e.mu.Unlock()
	if ok {
		s.Close()
	}
	return nil
}

// CloseAll tears down every live session. Used on daemon shutdown.
func (e *WSEnv) CloseAll() {
	e.mu.Lock()
	all := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.sessions = map[string]*Session{}
	e.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
