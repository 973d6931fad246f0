// Package bridge keeps one agent attached to the world: it consumes
// decisions, expands them into environment commands, repairs the raw
// observation stream and runs the safety behaviors that may pre-empt the
// controller.
package bridge

import (
	"context"

	"voxelmind.ai/internal/protocol"
)

// Handle identifies one attached agent within an environment and carries
// the world parameters announced at attach time.
type Handle struct {
	SessionID      string
	AgentID        string
	Spawn          [3]float64
	BoundaryRadius float64
}

// StepResult is one environment round-trip. Obs may be nil (no frame
// arrived) or an empty frame (Self missing); repair deals with both. The
// Info side channel inside the frame is authoritative where present.
type StepResult struct {
	Obs  *protocol.ObsMsg
	Tick uint64
	Done bool
}

// Environment is the world attachment consumed by the bridge. Step applies
// the commands one per environment tick and returns the post-sequence
// observation; an empty command list just waits for the next frame.
type Environment interface {
	Connect(ctx context.Context, sessionID, role string) (Handle, error)
	Step(ctx context.Context, h Handle, commands []string) (StepResult, error)
	Reset(ctx context.Context, h Handle) error
	Close(h Handle) error
}
