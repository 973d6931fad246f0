// Package mgmt serves the management surface: agent CRUD and lifecycle,
// status, live and archived memories, the monitor WebSocket, health and
// metrics.
package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/agent"
	"voxelmind.ai/internal/mind"
	"voxelmind.ai/internal/persistence/memstore"
	"voxelmind.ai/internal/persistence/mirror"
)

// Server exposes one agent manager over HTTP. The archive store and the
// journal mirror are optional; without a store ?source=archive queries
// answer 404.
type Server struct {
	// base parents agent runtimes started over HTTP, so they outlive the
	// request that started them.
	base   context.Context
	mgr    *agent.Manager
	store  *memstore.Store
	mirror *mirror.Mirror
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(base context.Context, mgr *agent.Manager, store *memstore.Store, mir *mirror.Mirror, logger *log.Logger) *Server {
	return &Server{
		base:   base,
		mgr:    mgr,
		store:  store,
		mirror: mir,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler builds the management mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/agents", s.handleAgents)
	mux.HandleFunc("/v1/agents/", s.handleAgent)
	return mux
}

func (s *Server) handleAgents(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, s.mgr.List())
	case http.MethodPost:
		var spec agent.CreateSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(rw, "bad request body", http.StatusBadRequest)
			return
		}
		st, err := s.mgr.Create(spec)
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, agent.ErrExists) {
				code = http.StatusConflict
			}
			http.Error(rw, err.Error(), code)
			return
		}
		writeJSON(rw, http.StatusCreated, st)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAgent(rw http.ResponseWriter, r *http.Request) {
	// Patterns: /v1/agents/{id} and /v1/agents/{id}/{start|stop|memories|ws}
	path := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" || len(parts) > 2 {
		http.NotFound(rw, r)
		return
	}
	id := parts[0]
	op := ""
	if len(parts) == 2 {
		op = parts[1]
	}

	switch op {
	case "":
		switch r.Method {
		case http.MethodGet:
			st, err := s.mgr.Get(id)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusNotFound)
				return
			}
			writeJSON(rw, http.StatusOK, st)
		case http.MethodDelete:
			if err := s.mgr.Remove(id); err != nil {
				http.Error(rw, err.Error(), http.StatusNotFound)
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id})
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "start":
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		err := s.mgr.Start(s.base, id)
		switch {
		case err == nil:
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id})
		case errors.Is(err, agent.ErrNotFound):
			http.Error(rw, err.Error(), http.StatusNotFound)
		case errors.Is(err, agent.ErrRunning), errors.Is(err, mind.ErrTerminated):
			http.Error(rw, err.Error(), http.StatusConflict)
		default:
			http.Error(rw, err.Error(), http.StatusInternalServerError)
		}
	case "stop":
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.mgr.Stop(id); err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id})
	case "memories":
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleMemories(rw, r, id)
	case "ws":
		s.handleMonitor(rw, r, id)
	default:
		http.NotFound(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, st := range s.mgr.List() {
		fmt.Fprintf(rw, "voxelmind_agent_up{agent=%q} %d\n", st.ID, boolGauge(st.Running))
		fmt.Fprintf(rw, "voxelmind_agent_alive{agent=%q} %d\n", st.ID, boolGauge(st.Alive))
		fmt.Fprintf(rw, "voxelmind_agent_health{agent=%q} %.1f\n", st.ID, st.Health)
		fmt.Fprintf(rw, "voxelmind_agent_success_rate{agent=%q} %.4f\n", st.ID, st.SuccessRate)
		fmt.Fprintf(rw, "voxelmind_agent_decisions_total{agent=%q} %d\n", st.ID, st.Counters.Decisions)
		fmt.Fprintf(rw, "voxelmind_agent_oracle_failures_total{agent=%q} %d\n", st.ID, st.Counters.OracleFailures)
		fmt.Fprintf(rw, "voxelmind_agent_goal_cycles_total{agent=%q} %d\n", st.ID, st.Counters.GoalCycles)
		fmt.Fprintf(rw, "voxelmind_agent_salient_events_total{agent=%q} %d\n", st.ID, st.Counters.SalientEvents)
		fmt.Fprintf(rw, "voxelmind_agent_obs_repaired_total{agent=%q} %d\n", st.ID, st.Counters.ObsRepaired)
		fmt.Fprintf(rw, "voxelmind_agent_expect_confirmed_total{agent=%q} %d\n", st.ID, st.Counters.ExpectConfirmed)
		fmt.Fprintf(rw, "voxelmind_agent_expect_mismatch_total{agent=%q} %d\n", st.ID, st.Counters.ExpectMismatch)
		fmt.Fprintf(rw, "voxelmind_agent_expect_timeout_total{agent=%q} %d\n", st.ID, st.Counters.ExpectTimeout)
		fmt.Fprintf(rw, "voxelmind_agent_preemptions_total{agent=%q} %d\n", st.ID, st.Counters.Preemptions)
		fmt.Fprintf(rw, "voxelmind_agent_deaths_total{agent=%q} %d\n", st.ID, st.Counters.Deaths)
		fmt.Fprintf(rw, "voxelmind_agent_rejoins_total{agent=%q} %d\n", st.ID, st.Counters.Rejoins)
		fmt.Fprintf(rw, "voxelmind_agent_memories{agent=%q,tier=\"working\"} %d\n", st.ID, st.Memory.Working)
		fmt.Fprintf(rw, "voxelmind_agent_memories{agent=%q,tier=\"short\"} %d\n", st.ID, st.Memory.Short)
		fmt.Fprintf(rw, "voxelmind_agent_memories{agent=%q,tier=\"long\"} %d\n", st.ID, st.Memory.Long)
	}
	if s.store != nil {
		qs := s.store.Stats()
		fmt.Fprintf(rw, "voxelmind_archive_queue_depth %d\n", qs.QueueDepth)
		fmt.Fprintf(rw, "voxelmind_archive_queue_capacity %d\n", qs.QueueCapacity)
		fmt.Fprintf(rw, "voxelmind_archive_dropped_total %d\n", qs.Dropped)
	}
	if s.mirror != nil {
		ms := s.mirror.Stats()
		fmt.Fprintf(rw, "voxelmind_mirror_queue_depth %d\n", ms.QueueDepth)
		fmt.Fprintf(rw, "voxelmind_mirror_uploaded_total %d\n", ms.Uploaded)
		fmt.Fprintf(rw, "voxelmind_mirror_failed_total %d\n", ms.Failed)
		fmt.Fprintf(rw, "voxelmind_mirror_dropped_total %d\n", ms.Dropped)
	}
}

// handleMemories serves the live tiers by default; ?source=archive reads
// the sqlite archive instead, optionally filtered with ?q=.
func (s *Server) handleMemories(rw http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()

	if q.Get("source") == "archive" {
		if s.store == nil {
			http.Error(rw, "no archive store configured", http.StatusNotFound)
			return
		}
		limit := 100
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(rw, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		var (
			rows []memstore.ArchivedMemory
			err  error
		)
		if term := q.Get("q"); term != "" {
			rows, err = s.store.Search(r.Context(), id, term, limit)
		} else {
			rows, err = s.store.Recent(r.Context(), id, limit)
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, rows)
		return
	}

	var tier mind.MemoryTier
	switch q.Get("tier") {
	case "", "working":
		tier = mind.TierWorking
	case "short":
		tier = mind.TierShort
	case "long":
		tier = mind.TierLong
	default:
		http.Error(rw, "unknown tier", http.StatusBadRequest)
		return
	}
	recs, err := s.mgr.Memories(id, tier)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(rw, http.StatusOK, recs)
}

// handleMonitor upgrades to a WebSocket and streams the agent's monitor
// events as JSON frames until the peer goes away.
func (s *Server) handleMonitor(rw http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.mgr.Get(id); err != nil {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Printf("monitor upgrade: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := s.mgr.Subscribe(id)
	defer cancel()

	// Reader goroutine only notices the peer closing; closing conn on the
	// way out wakes it.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-readErr:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
