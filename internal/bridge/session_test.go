package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/protocol"
)

// worldServer is a minimal in-process world endpoint: one welcome per
// hello, a frame stream on a short period, and command application on ACT.
type worldServer struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	tick   uint64
	pos    [3]float64
	yaw    float64
	hellos []protocol.HelloMsg
}

func newWorldServer() *worldServer {
	return &worldServer{pos: [3]float64{0, 64, 0}}
}

func (w *worldServer) helloTokens() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.hellos))
	for i, h := range w.hellos {
		out[i] = h.ResumeToken
	}
	return out
}

func (w *worldServer) frame() protocol.ObsMsg {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	return protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick,
		AgentID:         "a-7",
		Self: &protocol.SelfObs{
			Pos:   w.pos,
			Yaw:   w.yaw,
			HP:    20,
			Food:  20,
			Alive: true,
		},
	}
}

func (w *worldServer) apply(commands []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range commands {
		w.tick++
		var verb string
		var val float64
		fmt.Sscanf(c, "%s %f", &verb, &val)
		rad := w.yaw * math.Pi / 180
		switch verb {
		case "move":
			w.pos[0] += -math.Sin(rad) * val
			w.pos[2] += math.Cos(rad) * val
		case "turn":
			w.yaw += val * 90
		}
	}
}

func (w *worldServer) handler(rw http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var hello protocol.HelloMsg
	if _, msg, err := conn.ReadMessage(); err != nil {
		return
	} else if json.Unmarshal(msg, &hello) != nil {
		return
	}
	w.mu.Lock()
	w.hellos = append(w.hellos, hello)
	w.mu.Unlock()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	if err := send(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       hello.SessionID,
		AgentID:         "a-7",
		ResumeToken:     "tok-1",
		WorldParams: protocol.WorldParams{
			TickRateHz:     1,
			BoundaryRadius: 50,
			SpawnPos:       [3]float64{0, 64, 0},
		},
	}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(25 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if send(w.frame()) != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAct:
			var act protocol.ActMsg
			if json.Unmarshal(msg, &act) != nil {
				continue
			}
			w.apply(act.Commands)
			if send(w.frame()) != nil {
				return
			}
		case protocol.TypeReset:
			w.mu.Lock()
			w.pos = [3]float64{0, 64, 0}
			w.mu.Unlock()
			if send(w.frame()) != nil {
				return
			}
		}
	}
}

func startWorld(t *testing.T) (*worldServer, string) {
	t.Helper()
	world := newWorldServer()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", world.handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return world, "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
}

func TestWSEnvConnectAndStep(t *testing.T) {
	world, url := startWorld(t)
	env := NewWSEnv(url, "Ada")
	defer env.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := env.Connect(ctx, "sess-1", "explorer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if h.AgentID != "a-7" {
		t.Fatalf("agent id = %q, want a-7", h.AgentID)
	}
	if h.BoundaryRadius != 50 {
		t.Fatalf("boundary = %v, want 50", h.BoundaryRadius)
	}

	res, err := env.Step(ctx, h, nil)
	if err != nil {
		t.Fatalf("Step(nil): %v", err)
	}
	if res.Obs == nil || res.Obs.Empty() {
		t.Fatalf("frame = %+v, want a self block", res.Obs)
	}

	before := res.Tick
	res, err = env.Step(ctx, h, []string{"move 1", "move 1"})
	if err != nil {
		t.Fatalf("Step(move): %v", err)
	}
	if res.Tick < before+2 {
		t.Fatalf("tick = %d, want >= %d", res.Tick, before+2)
	}
	world.mu.Lock()
	z := world.pos[2]
	world.mu.Unlock()
	if math.Abs(z-2) > 1e-9 {
		t.Fatalf("world z = %v, want 2", z)
	}
}

func TestWSEnvRejoinCarriesResumeToken(t *testing.T) {
	world, url := startWorld(t)
	env := NewWSEnv(url, "Ada")
	defer env.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.Connect(ctx, "sess-1", "explorer"); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if _, err := env.Connect(ctx, "sess-1", "explorer"); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	tokens := world.helloTokens()
	if len(tokens) < 2 {
		t.Fatalf("hellos = %d, want 2", len(tokens))
	}
	if tokens[0] != "" {
		t.Fatalf("first hello token = %q, want empty", tokens[0])
	}
	if tokens[len(tokens)-1] != "tok-1" {
		t.Fatalf("rejoin hello token = %q, want tok-1", tokens[len(tokens)-1])
	}
}
