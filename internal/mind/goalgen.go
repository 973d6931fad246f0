package mind

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxelmind.ai/internal/oracle"
)

type GoalGenPolicy struct {
	Interval    time.Duration
	CallTimeout time.Duration
	Temperature float64

	// ResourceTTL is the abandonment horizon stamped on resource goals.
	ResourceTTL time.Duration
	// AbandonStreak drops the current goal after this many consecutive
	// action mismatches.
	AbandonStreak int

	LowHealth float64
	LowFood   float64
}

func DefaultGoalGenPolicy() GoalGenPolicy {
	return GoalGenPolicy{
		Interval:      7 * time.Second,
		CallTimeout:   6 * time.Second,
		Temperature:   0.7,
		ResourceTTL:   10 * time.Minute,
		AbandonStreak: 5,
		LowHealth:     6,
		LowFood:       6,
	}
}

// maxGoalCandidates bounds how many proposals one reply may contribute;
// ranking then truncates to the stack cap.
const maxGoalCandidates = 5

// GoalGen asks the reasoning oracle for goal candidates, prices them with a
// fixed policy table and re-ranks the stack. It is the only writer of the
// goal stack; on any oracle failure the stack is left exactly as it was.
type GoalGen struct {
	pol      GoalGenPolicy
	provider oracle.Provider
	persona  string
	logger   *log.Logger
}

func NewGoalGen(pol GoalGenPolicy, provider oracle.Provider, persona string, logger *log.Logger) *GoalGen {
	return &GoalGen{pol: pol, provider: provider, persona: persona, logger: logger}
}

func (m *GoalGen) Name() string               { return "goalgen" }
func (m *GoalGen) Interval() time.Duration    { return m.pol.Interval }
func (m *GoalGen) CallTimeout() time.Duration { return m.pol.CallTimeout }

func (m *GoalGen) OnTick(ctx context.Context, s *State) (Delta, error) {
	snap := s.Snapshot()
	if snap.Terminated || !snap.Alive {
		return Delta{}, nil
	}

	resp, err := m.provider.Generate(ctx, oracle.Request{
		System:      m.systemPrompt(),
		Prompt:      goalPrompt(BuildDigest(snap, DigestMaxItems)),
		Temperature: m.pol.Temperature,
	})
	s.Counters().GoalCycles.Add(1)
	if err != nil {
		s.Counters().OracleFailures.Add(1)
		m.logger.Printf("agent=%s module=goalgen oracle failure, stack unchanged: %v", snap.AgentID, err)
		return Delta{Note: "oracle failure, stack unchanged"}, nil
	}

	candidates := parseGoalReply(resp.Text, time.Now(), m.pol)
	kept, completed := m.pruneGoals(snap)
	ranked := mergeGoals(kept, candidates, snap, m.pol)
	if err := s.MergeGoals(ranked); err != nil {
		if errors.Is(err, ErrNotAlive) || errors.Is(err, ErrTerminated) {
			return Delta{}, nil
		}
		return Delta{}, err
	}
	for _, g := range completed {
		s.AddMemory("goal_completed", "completed goal: "+g.Text, ImportanceFor("goal_completed", g.Text, nil))
	}
	return Delta{Events: len(ranked), Note: noteForStack(ranked)}, nil
}

func (m *GoalGen) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You set goals for an agent living in a blocky survival world. ")
	if m.persona != "" {
		b.WriteString(m.persona)
		b.WriteString(" ")
	}
	b.WriteString("Reply with up to three lines, each of the form\n")
	b.WriteString("GOAL: <survival|resource|social|exploration>: <short imperative goal>\n")
	b.WriteString("Most important goal first. No other text.")
	return b.String()
}

func goalPrompt(d Digest) string {
	return d.Render() + "\nWhat should this agent pursue next?"
}

// pruneGoals drops satisfied and expired goals and abandons the current
// goal when the failure streak says it is not working. Pure; the result is
// only applied after a successful oracle round-trip.
func (m *GoalGen) pruneGoals(snap Snapshot) (kept, completed []Goal) {
	now := snap.At
	for i, g := range snap.Goals {
		switch {
		case g.Satisfied(snap.Inventory):
			completed = append(completed, g)
		case g.Expired(now):
		case i == 0 && snap.FailStreak >= m.pol.AbandonStreak:
		default:
			kept = append(kept, g)
		}
	}
	return kept, completed
}

func mergeGoals(kept, candidates []Goal, snap Snapshot, pol GoalGenPolicy) []Goal {
	out := append([]Goal(nil), kept...)
	for _, c := range candidates {
		dup := false
		for i := range out {
			if sameGoal(out[i], c) {
				if c.Priority > out[i].Priority {
					out[i].Priority = c.Priority
				}
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	for i := range out {
		out[i].Priority = priorityFor(out[i].Kind, snap, pol)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > GoalStackCap {
		out = out[:GoalStackCap]
	}
	return out
}

// priorityFor is the fixed pricing table. The oracle proposes, the policy
// prices; survival under pressure always wins.
func priorityFor(kind GoalKind, snap Snapshot, pol GoalGenPolicy) float64 {
	switch kind {
	case GoalSurvival:
		if snap.Health <= pol.LowHealth || snap.Food <= pol.LowFood {
			return 1.0
		}
		return 0.9
	case GoalResource:
		return 0.7
	case GoalSocial:
		return 0.6
	default:
		return 0.5
	}
}

// parseGoalReply extracts "GOAL: [kind:] text" lines, tolerating bullets
// and numbering. Unlabeled goals are classified by keyword.
func parseGoalReply(text string, now time.Time, pol GoalGenPolicy) []Goal {
	var out []Goal
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. \t")
		if len(line) < 5 || !strings.EqualFold(line[:5], "goal:") {
			continue
		}
		body := strings.TrimSpace(line[5:])
		if body == "" {
			continue
		}
		kind := GoalKind("")
		if i := strings.Index(body, ":"); i > 0 {
			label := strings.ToLower(strings.TrimSpace(body[:i]))
			switch GoalKind(label) {
			case GoalSurvival, GoalResource, GoalSocial, GoalExploration:
				kind = GoalKind(label)
				body = strings.TrimSpace(body[i+1:])
			}
		}
		if body == "" {
			continue
		}
		if kind == "" {
			kind = guessGoalKind(body)
		}
		g := Goal{
			ID:        uuid.NewString(),
			Kind:      kind,
			Text:      body,
			CreatedAt: now,
		}
		if kind == GoalResource {
			if item, n, ok := extractTarget(body); ok {
				g.TargetItem, g.TargetCount = item, n
			}
			if pol.ResourceTTL > 0 {
				g.ExpiresAt = now.Add(pol.ResourceTTL)
			}
		}
		out = append(out, g)
		if len(out) == maxGoalCandidates {
			break
		}
	}
	return out
}

func noteForStack(goals []Goal) string {
	if len(goals) == 0 {
		return "stack empty"
	}
	return "head: " + goals[0].Text
}
