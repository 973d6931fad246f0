package bridge

import (
	"fmt"

	"voxelmind.ai/internal/mind"
)

// turnDegreesPerTick is how far "turn 1" rotates in one environment tick.
// The turn_to loop feeds errors through this to get a proportional rate.
const turnDegreesPerTick = 90.0

// resolveSteps fills the movement repeat count the controller left at zero.
func resolveSteps(a mind.Action, defaultSteps int) mind.Action {
	if !a.Movement() {
		return a
	}
	if a.Steps <= 0 {
		a.Steps = defaultSteps
	}
	if a.Steps < 1 {
		a.Steps = 1
	}
	return a
}

// expandCommands turns one action into environment commands, one per tick.
// turn_to returns nil: it runs as a bounded feedback loop instead, since an
// open-loop turn accumulates too much drift.
func expandCommands(a mind.Action) []string {
	switch a.Kind {
	case mind.ActMoveForward:
		return repeatCmd("move 1", a.Steps)
	case mind.ActMoveBack:
		return repeatCmd("move -1", a.Steps)
	case mind.ActStrafeLeft:
		return repeatCmd("strafe -1", a.Steps)
	case mind.ActStrafeRight:
		return repeatCmd("strafe 1", a.Steps)
	case mind.ActJump:
		return []string{"jump 1"}
	case mind.ActPlace:
		// Pitch reset first so the block lands in front, not underfoot.
		return []string{"look 0", "use 1"}
	case mind.ActBreak:
		return []string{"look 0", "attack 1"}
	case mind.ActUse:
		return []string{"use 1"}
	case mind.ActSelectSlot:
		return []string{fmt.Sprintf("hotbar.%d 1", a.Slot+1)}
	case mind.ActCraft:
		return []string{"craft " + a.Item}
	case mind.ActSay:
		return []string{"chat " + a.Text}
	case mind.ActTurnTo:
		return nil
	default:
		return []string{"move 0"}
	}
}

func repeatCmd(cmd string, n int) []string {
	if n < 1 {
		n = 1
	}
	out := make([]string, n)
	for i := range out {
		out[i] = cmd
	}
	return out
}

// turnRate maps a yaw error in degrees to a single-tick turn rate.
func turnRate(errDeg float64) float64 {
	r := errDeg / turnDegreesPerTick
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}
