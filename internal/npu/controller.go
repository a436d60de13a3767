package npu

// SystemState is the top-level lifecycle, suitable for external polling.
type SystemState int

const (
	StateIdle SystemState = iota
	StateInit
	StateNormalOp
	StateBypassOp
	StateWaitDrain
	StateDone
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInit:
		return "init"
	case StateNormalOp:
		return "normal_op"
	case StateBypassOp:
		return "bypass_op"
	case StateWaitDrain:
		return "wait_drain"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Occupancy hysteresis thresholds, as fractions of buffer capacity. At or
// above high water the producer is forced off even absent a stall streak;
// at or below low water it is re-enabled whenever credit allows.
const (
	HighWaterNum = 3
	HighWaterDen = 4
	LowWaterNum  = 1
	LowWaterDen  = 4
)

// CtrlInputs is the controller's read-only snapshot of the other
// components' previous-step state.
type CtrlInputs struct {
	Start bool

	Occupancy int
	Capacity  int
	Full      bool
	Empty     bool

	CreditAvailable bool
	Draining        bool
	ConsumerIdle    bool
	ProducerDone    bool
	PrefetchBusy    bool

	// Fault is set when an overflow or underflow was observed last step
	// outside bypass mode.
	Fault bool
}

// CtrlOutputs is the controller's enable lines for the coming step.
type CtrlOutputs struct {
	State SystemState

	ProducerEnable bool
	ConsumerEnable bool
	PrefetchEnable bool
	Bypass         bool
	Error          bool
	Busy           bool
}

// Controller is the top-level scheduler: it enables and disables the
// producer and consumer, detects sustained backpressure, degrades to the
// pass-through path, and reports status.
type Controller struct {
	stallThreshold int
	forceBypass    bool

	state       SystemState
	throttled   bool
	stallStreak int
	errorLatch  bool

	stallCount  uint64
	stallCredit uint64
	bypassCount uint64
	cycles      uint64
}

// NewController creates a controller in Idle.
func NewController(cfg *Config) *Controller {
	return &Controller{
		stallThreshold: cfg.StallThreshold,
		forceBypass:    cfg.Bypass,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() SystemState { return c.state }

// StallCount returns the cumulative producer-stalled steps from any cause
// (credit exhaustion, a full buffer, or the occupancy throttle).
func (c *Controller) StallCount() uint64 { return c.stallCount }

// CreditStallCount returns the subset of stalled steps blocked on credit.
func (c *Controller) CreditStallCount() uint64 { return c.stallCredit }

// BypassCount returns the number of bypass transitions.
func (c *Controller) BypassCount() uint64 { return c.bypassCount }

// Cycles returns the cumulative step count.
func (c *Controller) Cycles() uint64 { return c.cycles }

// Step advances the controller one cycle against the previous-step snapshot
// and returns the enable lines for this step.
func (c *Controller) Step(in CtrlInputs) CtrlOutputs {
	c.cycles++

	if in.Fault && c.state != StateIdle {
		c.errorLatch = true
		c.state = StateError
	}

	switch c.state {
	case StateIdle:
		c.throttled = false
		c.stallStreak = 0
		if in.Start {
			c.state = StateInit
		}

	case StateInit:
		// configuration is latched by construction; one cycle and go
		c.state = StateNormalOp
		if c.forceBypass {
			c.state = StateBypassOp
			c.bypassCount++
		}

	case StateNormalOp:
		c.updateThrottle(in)
		prodOn := in.CreditAvailable && !in.Full && !c.throttled && !in.ProducerDone
		if !prodOn && !in.ProducerDone {
			c.stallStreak++
			c.stallCount++
			if !in.CreditAvailable {
				c.stallCredit++
			}
			if c.stallStreak >= c.stallThreshold {
				c.state = StateBypassOp
				c.bypassCount++
				c.stallStreak = 0
			}
		} else {
			c.stallStreak = 0
		}
		if !in.Start && in.ProducerDone {
			c.state = StateWaitDrain
		}

	case StateBypassOp:
		if c.atLowWater(in) && !c.forceBypass {
			c.state = StateNormalOp
			c.throttled = false
		}
		if !in.Start && in.ProducerDone {
			c.state = StateWaitDrain
		}

	case StateWaitDrain:
		// keep the consumer alive until any group mid-drain finishes
		if in.Empty && !in.Draining && in.ConsumerIdle {
			c.state = StateDone
		}

	case StateDone:
		c.state = StateIdle

	case StateError:
		// fatal for the frame; only a reset leaves this state
	}

	return c.outputs(in)
}

// Reset returns the controller to Idle, clearing the error latch. Counters
// survive for post-mortem inspection.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.errorLatch = false
	c.throttled = false
	c.stallStreak = 0
}

func (c *Controller) updateThrottle(in CtrlInputs) {
	if in.Capacity == 0 {
		return
	}
	if in.Occupancy*HighWaterDen >= in.Capacity*HighWaterNum {
		c.throttled = true
	} else if c.atLowWater(in) {
		c.throttled = false
	}
}

func (c *Controller) atLowWater(in CtrlInputs) bool {
	return in.Occupancy*LowWaterDen <= in.Capacity*LowWaterNum
}

func (c *Controller) outputs(in CtrlInputs) CtrlOutputs {
	out := CtrlOutputs{State: c.state, Error: c.errorLatch}
	switch c.state {
	case StateNormalOp:
		out.ProducerEnable = in.CreditAvailable && !in.Full && !c.throttled
		out.ConsumerEnable = !in.Empty || in.Draining
		out.PrefetchEnable = true
		out.Busy = true
	case StateBypassOp:
		out.Bypass = true
		out.ProducerEnable = true // words route around the buffer
		out.ConsumerEnable = !in.Empty || in.Draining
		out.PrefetchEnable = true
		out.Busy = true
	case StateWaitDrain:
		out.ConsumerEnable = !in.Empty || in.Draining
		out.PrefetchEnable = true
		out.Busy = true
	case StateInit:
		out.Busy = true
	}
	return out
}
