package mind

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxelmind.ai/internal/oracle"
)

type ControllerPolicy struct {
	Interval    time.Duration
	CallTimeout time.Duration
	Temperature float64
	MaxContext  int // memory lines in the digest
}

func DefaultControllerPolicy() ControllerPolicy {
	return ControllerPolicy{
		Interval:    5 * time.Second,
		CallTimeout: 4 * time.Second,
		Temperature: 0.4,
		MaxContext:  DigestMaxItems,
	}
}

// Controller is the bottleneck: the only module that consults the oracle
// for actions. Every cycle while the agent lives emits exactly one
// Decision; an oracle failure degrades to wait rather than to silence. The
// decision mailbox holds one entry and newer decisions displace older
// unconsumed ones.
type Controller struct {
	pol        ControllerPolicy
	provider   oracle.Provider
	persona    string
	logger     *log.Logger
	decisions  chan Decision
	onDecision func(Decision)
	cycle      uint64
}

func NewController(pol ControllerPolicy, provider oracle.Provider, persona string, logger *log.Logger, decisions chan Decision) *Controller {
	return &Controller{pol: pol, provider: provider, persona: persona, logger: logger, decisions: decisions}
}

func (m *Controller) Name() string               { return "controller" }
func (m *Controller) Interval() time.Duration    { return m.pol.Interval }
func (m *Controller) CallTimeout() time.Duration { return m.pol.CallTimeout }

// Decisions is the receive side of the mailbox, for the bridge.
func (m *Controller) Decisions() <-chan Decision { return m.decisions }

// OnDecision registers a sink for emitted decisions, called after the
// mailbox push. Set before the runtime starts.
func (m *Controller) OnDecision(fn func(Decision)) { m.onDecision = fn }

func (m *Controller) OnTick(ctx context.Context, s *State) (Delta, error) {
	snap := s.Snapshot()
	if snap.Terminated || !snap.Alive {
		return Delta{}, nil
	}
	m.cycle++

	d := BuildDigest(snap, m.pol.MaxContext)
	action := Wait()
	rationale := ""

	resp, err := m.provider.Generate(ctx, oracle.Request{
		System:      m.systemPrompt(),
		Prompt:      d.Render() + "\nDecide the next action.",
		Temperature: m.pol.Temperature,
	})
	switch {
	case err != nil:
		s.Counters().OracleFailures.Add(1)
		rationale = "oracle failure, holding position"
		m.logger.Printf("agent=%s module=controller cycle=%d oracle failure: %v", snap.AgentID, m.cycle, err)
	default:
		var perr error
		action, rationale, perr = ParseDecisionReply(resp.Text)
		if perr != nil {
			s.Counters().OracleFailures.Add(1)
			action, rationale = Wait(), "unparseable reply, holding position"
			m.logger.Printf("agent=%s module=controller cycle=%d bad reply: %v", snap.AgentID, m.cycle, perr)
		}
	}

	dec := Decision{
		ID:          uuid.NewString(),
		Cycle:       m.cycle,
		Action:      action,
		Rationale:   rationale,
		StateDigest: d.Hash(),
		At:          time.Now(),
	}
	s.RecordDecision(dec)
	s.Counters().Decisions.Add(1)
	m.pushLatest(dec)
	if m.onDecision != nil {
		m.onDecision(dec)
	}
	return Delta{Events: 1, Note: "action=" + action.String()}, nil
}

// pushLatest delivers into the capacity-one mailbox, displacing an
// unconsumed older decision. Single producer, so the loop terminates.
func (m *Controller) pushLatest(d Decision) {
	for {
		select {
		case m.decisions <- d:
			return
		default:
		}
		select {
		case <-m.decisions:
		default:
		}
	}
}

func (m *Controller) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You control an agent in a blocky survival world. ")
	if m.persona != "" {
		b.WriteString(m.persona)
		b.WriteString(" ")
	}
	b.WriteString("Choose exactly one action from:\n")
	b.WriteString("move_forward, move_back, strafe_left, strafe_right, jump, ")
	b.WriteString("turn_to <degrees>, place, break, use, select_slot <0-8>, ")
	b.WriteString("craft <item>, say <text>, wait.\n")
	b.WriteString("Reply with exactly two lines:\n")
	b.WriteString("ACTION: <action>\n")
	b.WriteString("REASONING: <one short sentence>")
	return b.String()
}

// ParseDecisionReply extracts the ACTION and REASONING lines. When no
// ACTION label is present the first non-empty line is tried as a bare
// action token.
func ParseDecisionReply(text string) (Action, string, error) {
	var actionLine, rationale, firstLine string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if firstLine == "" {
			firstLine = line
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ACTION:") && actionLine == "":
			actionLine = strings.TrimSpace(line[len("ACTION:"):])
		case strings.HasPrefix(upper, "REASONING:") && rationale == "":
			rationale = strings.TrimSpace(line[len("REASONING:"):])
		}
	}
	if actionLine == "" {
		actionLine = firstLine
	}
	if actionLine == "" {
		return Action{}, "", fmt.Errorf("no action in reply")
	}
	a, err := ParseAction(actionLine)
	if err != nil {
		return Action{}, "", fmt.Errorf("parse %q: %w", actionLine, err)
	}
	return a, rationale, nil
}
