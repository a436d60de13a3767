package npu

import "testing"

func ctrlConfig(stallThreshold int) *Config {
	cfg := &Config{
		FrameWidth:     64,
		FrameHeight:    64,
		TileSize:       16,
		WordsPerGroup:  16,
		DepthGroups:    4,
		MaxCredits:     4,
		StallThreshold: stallThreshold,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func TestControllerStartSequence(t *testing.T) {
	c := NewController(ctrlConfig(8))

	out := c.Step(CtrlInputs{})
	if out.State != StateIdle || out.Busy {
		t.Fatalf("unstarted: %+v", out)
	}

	out = c.Step(CtrlInputs{Start: true})
	if out.State != StateInit || !out.Busy {
		t.Fatalf("after start: %+v", out)
	}

	out = c.Step(CtrlInputs{Start: true, CreditAvailable: true, Empty: true, Capacity: 64})
	if out.State != StateNormalOp {
		t.Fatalf("after init: %+v", out)
	}
	if !out.ProducerEnable || !out.PrefetchEnable {
		t.Fatalf("normal op enables: %+v", out)
	}
}

func TestControllerBypassAfterSustainedStall(t *testing.T) {
	const threshold = 4
	c := NewController(ctrlConfig(threshold))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})

	// producer blocked on credit every step
	in := CtrlInputs{Start: true, CreditAvailable: false, Capacity: 64, Occupancy: 32}
	var out CtrlOutputs
	for i := 0; i < threshold; i++ {
		if c.State() != StateNormalOp {
			t.Fatalf("left normal op early at step %d: %s", i, c.State())
		}
		out = c.Step(in)
	}
	if out.State != StateBypassOp || !out.Bypass {
		t.Fatalf("after %d stalled steps: %+v", threshold, out)
	}
	if c.BypassCount() != 1 {
		t.Fatalf("bypass count: got %d want 1", c.BypassCount())
	}
	if c.StallCount() != threshold {
		t.Fatalf("stall count: got %d want %d", c.StallCount(), threshold)
	}
	if c.CreditStallCount() != threshold {
		t.Fatalf("credit stall count: got %d want %d", c.CreditStallCount(), threshold)
	}
}

func TestControllerStallCauseAccounting(t *testing.T) {
	c := NewController(ctrlConfig(1000))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})

	// blocked on credit
	c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 32})
	// throttled above high water despite credit
	c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 48, CreditAvailable: true})
	// full buffer with credit
	c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 64, Full: true, CreditAvailable: true})

	if c.StallCount() != 3 {
		t.Fatalf("total stalls: got %d want 3", c.StallCount())
	}
	if c.CreditStallCount() != 1 {
		t.Fatalf("credit stalls: got %d want 1", c.CreditStallCount())
	}
}

func TestControllerBypassExitsAtLowWater(t *testing.T) {
	c := NewController(ctrlConfig(2))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 32})
	c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 32})
	if c.State() != StateBypassOp {
		t.Fatalf("setup failed: %s", c.State())
	}

	// still above the low-water mark: stay in bypass
	out := c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 32})
	if out.State != StateBypassOp {
		t.Fatalf("above low water: %+v", out)
	}

	// at or below capacity/4: back to normal
	out = c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 16, CreditAvailable: true})
	if out.State != StateNormalOp {
		t.Fatalf("at low water: %+v", out)
	}
}

func TestControllerHighWaterThrottleAndRecovery(t *testing.T) {
	c := NewController(ctrlConfig(1000))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})

	// occupancy at 3/4 capacity throttles the producer despite credit
	out := c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 48, CreditAvailable: true})
	if out.ProducerEnable {
		t.Fatalf("producer enabled above high water: %+v", out)
	}

	// hysteresis: mid-band occupancy keeps the throttle latched
	out = c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 32, CreditAvailable: true})
	if out.ProducerEnable {
		t.Fatalf("throttle released mid-band: %+v", out)
	}

	// the throttle releases within the same step low water is observed
	out = c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 16, CreditAvailable: true})
	if !out.ProducerEnable {
		t.Fatalf("producer disabled at low water: %+v", out)
	}
}

func TestControllerDrainToDoneToIdle(t *testing.T) {
	c := NewController(ctrlConfig(8))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})

	out := c.Step(CtrlInputs{Start: false, ProducerDone: true, Occupancy: 16, Capacity: 64, CreditAvailable: true})
	if out.State != StateWaitDrain {
		t.Fatalf("drain entry: %+v", out)
	}
	if !out.ConsumerEnable || !out.PrefetchEnable {
		t.Fatalf("drain must keep consumer and prefetch alive: %+v", out)
	}

	// still draining: a group is mid-pop
	out = c.Step(CtrlInputs{ProducerDone: true, Empty: true, Draining: true})
	if out.State != StateWaitDrain {
		t.Fatalf("left drain with group mid-pop: %+v", out)
	}

	out = c.Step(CtrlInputs{ProducerDone: true, Empty: true, ConsumerIdle: true})
	if out.State != StateDone {
		t.Fatalf("drain exit: %+v", out)
	}
	out = c.Step(CtrlInputs{ProducerDone: true, Empty: true, ConsumerIdle: true})
	if out.State != StateIdle {
		t.Fatalf("done must fall back to idle: %+v", out)
	}
}

func TestControllerFaultLatchesError(t *testing.T) {
	c := NewController(ctrlConfig(8))
	c.Step(CtrlInputs{Start: true})
	c.Step(CtrlInputs{Start: true})

	out := c.Step(CtrlInputs{Start: true, Fault: true})
	if out.State != StateError || !out.Error {
		t.Fatalf("fault: %+v", out)
	}
	if out.ProducerEnable || out.ConsumerEnable || out.PrefetchEnable {
		t.Fatalf("error state left enables on: %+v", out)
	}

	// error is sticky against further inputs
	out = c.Step(CtrlInputs{Start: true, CreditAvailable: true, Empty: true})
	if out.State != StateError {
		t.Fatalf("error not sticky: %+v", out)
	}

	c.Reset()
	if c.State() != StateIdle {
		t.Fatalf("reset: %s", c.State())
	}
	out = c.Step(CtrlInputs{Start: true})
	if out.State != StateInit || out.Error {
		t.Fatalf("restart after reset: %+v", out)
	}
}

func TestControllerForcedBypassFromConfig(t *testing.T) {
	cfg := ctrlConfig(8)
	cfg.Bypass = true
	c := NewController(cfg)
	c.Step(CtrlInputs{Start: true})

	out := c.Step(CtrlInputs{Start: true})
	if out.State != StateBypassOp || !out.Bypass {
		t.Fatalf("forced bypass: %+v", out)
	}

	// low water must not pull a force-bypassed controller back to normal
	out = c.Step(CtrlInputs{Start: true, Capacity: 64, Occupancy: 0})
	if out.State != StateBypassOp {
		t.Fatalf("forced bypass exited: %+v", out)
	}
}
