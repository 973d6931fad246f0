package mind

import (
	"strconv"
	"strings"
	"time"
)

type GoalKind string

const (
	GoalSurvival    GoalKind = "survival"
	GoalResource    GoalKind = "resource"
	GoalSocial      GoalKind = "social"
	GoalExploration GoalKind = "exploration"
)

// GoalStackCap bounds the ranked stack; the head is the current goal.
const GoalStackCap = 3

type Goal struct {
	ID        string    `json:"id"`
	Kind      GoalKind  `json:"kind"`
	Text      string    `json:"text"`
	Priority  float64   `json:"priority"`
	CreatedAt time.Time `json:"created_at"`

	// TargetItem/TargetCount define a completion condition for resource
	// goals; ExpiresAt an abandonment one. Zero values mean none.
	TargetItem  string    `json:"target_item,omitempty"`
	TargetCount int       `json:"target_count,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func (g Goal) Satisfied(inv map[string]int) bool {
	if g.TargetItem == "" || g.TargetCount <= 0 {
		return false
	}
	return inv[g.TargetItem] >= g.TargetCount
}

func (g Goal) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// sameGoal treats goals with the same kind and normalized text as one.
func sameGoal(a, b Goal) bool {
	return a.Kind == b.Kind && normGoalText(a.Text) == normGoalText(b.Text)
}

func normGoalText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// guessGoalKind classifies free text from the reasoning oracle when it does
// not label the goal itself.
func guessGoalKind(text string) GoalKind {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "survive", "flee", "eat", "heal", "hide", "escape", "food", "safety"):
		return GoalSurvival
	case containsAny(t, "collect", "gather", "mine", "chop", "craft", "build", "harvest", "smelt"):
		return GoalResource
	case containsAny(t, "talk", "trade", "help", "greet", "meet", "follow", "share", "ask"):
		return GoalSocial
	}
	return GoalExploration
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractTarget pulls a "<count> <item>" pair out of goal text, e.g.
// "collect 5 logs" -> ("logs", 5). Returns ok=false when no count appears.
func extractTarget(text string) (item string, count int, ok bool) {
	fields := strings.Fields(strings.ToLower(text))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.Trim(f, ".,:;"))
		if err != nil || n <= 0 || i+1 >= len(fields) {
			continue
		}
		it := strings.Trim(fields[i+1], ".,:;")
		if it == "" {
			continue
		}
		return it, n, true
	}
	return "", 0, false
}
