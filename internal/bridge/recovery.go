package bridge

import "math"

// ConnState is the bridge connection state machine:
// Disconnected -> Connecting -> Active <-> Recovering -> Active, and
// Active|Recovering -> Dead -> Rejoining -> Active, or Terminated.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnActive       ConnState = "active"
	ConnRecovering   ConnState = "recovering"
	ConnDead         ConnState = "dead"
	ConnRejoining    ConnState = "rejoining"
	ConnTerminated   ConnState = "terminated"
)

type RecoveryReason string

const (
	RecoverStuck  RecoveryReason = "stuck"
	RecoverBounds RecoveryReason = "bounds"
)

type RecoveryPolicy struct {
	// BoundaryRadius bounds the walkable X/Z disc around the origin; the
	// welcome message may override it.
	BoundaryRadius float64
	// ReturnFraction ends a bounds recovery once the agent is back inside
	// this fraction of the radius.
	ReturnFraction float64

	StuckWindow  int
	StuckEpsilon float64
	MinY         float64

	RejoinBudget int
}

func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		BoundaryRadius: 50,
		ReturnFraction: 0.8,
		StuckWindow:    10,
		StuckEpsilon:   0.25,
		MinY:           0,
		RejoinBudget:   1,
	}
}

type motionSample struct {
	pos    [3]float64
	moving bool
}

// recoveryTracker watches recent positions to spot an agent that keeps
// trying to move without getting anywhere.
type recoveryTracker struct {
	window  int
	epsilon float64
	samples []motionSample
}

func newRecoveryTracker(window int, epsilon float64) *recoveryTracker {
	return &recoveryTracker{window: window, epsilon: epsilon}
}

func (t *recoveryTracker) observe(pos [3]float64, moving bool) {
	t.samples = append(t.samples, motionSample{pos: pos, moving: moving})
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}
}

// stuck reports a full window with movement attempts but no material
// displacement.
func (t *recoveryTracker) stuck() bool {
	if len(t.samples) < t.window {
		return false
	}
	tried := false
	for _, s := range t.samples {
		if s.moving {
			tried = true
			break
		}
	}
	if !tried {
		return false
	}
	first := t.samples[0].pos
	for _, s := range t.samples[1:] {
		if horizDist2(first, s.pos) > t.epsilon {
			return false
		}
	}
	return true
}

func (t *recoveryTracker) reset() { t.samples = t.samples[:0] }

func horizDist2(a, b [3]float64) float64 {
	return math.Hypot(a[0]-b[0], a[2]-b[2])
}

func distFromCenter(pos [3]float64) float64 {
	return math.Hypot(pos[0], pos[2])
}

func outOfBounds(pos [3]float64, radius float64) bool {
	return radius > 0 && distFromCenter(pos) > radius
}

func belowFloor(pos [3]float64, minY float64) bool {
	return pos[1] < minY
}

// yawToward returns the yaw that faces from toward to.
func yawToward(from, to [3]float64) float64 {
	dx, dz := to[0]-from[0], to[2]-from[2]
	deg := math.Atan2(-dx, dz) * 180 / math.Pi
	for deg < 0 {
		deg += 360
	}
	return deg
}
