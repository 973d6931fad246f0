package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/protocol"
)

// bot is a hand-driven probe for world servers: it joins as a plain client
// and wanders, without any of the cognitive stack. Useful to check a world
// endpoint before pointing agentd at it.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8777/v1/ws", "world ws url")
		session = flag.String("session", "", "session id (default: time-derived)")
		name    = flag.String("name", "bot", "agent name")
		role    = flag.String("role", "scout", "agent role")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("bot-%d", time.Now().Unix())
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Role:            *role,
		AgentName:       *name,
		Capabilities: protocol.HelloCapabilities{
			InfoChannel: true,
			MaxQueue:    8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	agentID := ""
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
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
			agentID = w.AgentID
			logger.Printf("WELCOME agent_id=%s spawn=%v boundary=%.0f resumed=%v",
				w.AgentID, w.WorldParams.SpawnPos, w.WorldParams.BoundaryRadius, w.Resumed)

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			handleObs(conn, logger, agentID, &obs)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s %s", e.Code, e.Message)

		case protocol.TypeBye:
			logger.Printf("BYE")
			return
		}
	}
}

func handleObs(conn *websocket.Conn, logger *log.Logger, agentID string, obs *protocol.ObsMsg) {
	if obs.Empty() {
		return
	}
	if obs.Tick%50 == 0 {
		logger.Printf("OBS tick=%d pos=%.1f,%.1f,%.1f hp=%.0f food=%.0f entities=%d",
			obs.Tick, obs.Self.Pos[0], obs.Self.Pos[1], obs.Self.Pos[2],
			obs.Self.HP, obs.Self.Food, len(obs.Entities))
	}

	// Occasionally chat where we are.
	if obs.Tick%100 == 0 {
		send(conn, agentID, obs.Tick, []string{
			fmt.Sprintf("chat tick=%d pos=%.0f,%.0f,%.0f", obs.Tick, obs.Self.Pos[0], obs.Self.Pos[1], obs.Self.Pos[2]),
		})
	}

	// Wander: turn a little, then walk a few steps.
	if obs.Tick%200 == 10 {
		r := rand.New(rand.NewSource(int64(obs.Tick) + time.Now().UnixNano()))
		cmds := []string{fmt.Sprintf("turn %.2f", r.Float64()-0.5)}
		for i := 0; i < 2+r.Intn(4); i++ {
			cmds = append(cmds, "move 1")
		}
		send(conn, agentID, obs.Tick, cmds)
	}
}

func send(conn *websocket.Conn, agentID string, tick uint64, commands []string) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           fmt.Sprintf("act_%d", tick),
		Tick:            tick,
		AgentID:         agentID,
		Commands:        commands,
	}
	_ = conn.WriteJSON(act)
}
