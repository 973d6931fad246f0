package mind

import "time"

type ExpectationStatus string

const (
	ExpectPending    ExpectationStatus = "pending"
	ExpectConfirmed  ExpectationStatus = "confirmed"
	ExpectMismatched ExpectationStatus = "mismatched"
)

// Expectation is the predicted effect of one dispatched action. The bridge
// creates it immediately before dispatch; action awareness resolves it. At
// most one may be pending per agent.
type Expectation struct {
	ActionID   string    `json:"action_id"`
	Action     Action    `json:"action"`
	IssuedAt   time.Time `json:"issued_at"`
	IssuedTick uint64    `json:"issued_tick"`
	Deadline   time.Time `json:"deadline"`

	// CompleteTick is the env tick by which the effect should be visible.
	// Resolution waits for it so a multi-tick action is not scored mid-run.
	CompleteTick uint64 `json:"complete_tick"`

	// Baseline values at issue time, for delta checks.
	IssuedPos [3]float64     `json:"issued_pos"`
	IssuedInv map[string]int `json:"issued_inv,omitempty"`

	// Predictions; nil members mean "no check for this field".
	PredictPos *[3]float64    `json:"predict_pos,omitempty"`
	PredictYaw *float64       `json:"predict_yaw,omitempty"`
	PredictInv map[string]int `json:"predict_inv,omitempty"` // item -> signed delta

	Status ExpectationStatus `json:"status"`
}

func (e *Expectation) clone() *Expectation {
	if e == nil {
		return nil
	}
	c := *e
	if e.PredictPos != nil {
		p := *e.PredictPos
		c.PredictPos = &p
	}
	if e.PredictYaw != nil {
		y := *e.PredictYaw
		c.PredictYaw = &y
	}
	if e.IssuedInv != nil {
		c.IssuedInv = copyInv(e.IssuedInv)
	}
	if e.PredictInv != nil {
		c.PredictInv = copyInv(e.PredictInv)
	}
	return &c
}

func copyInv(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
