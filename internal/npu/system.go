package npu

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"sync"

	"github.com/kestrelhw/vcnsim/internal/logger"
)

// ErrCycleLimit is returned by Run when the cycle budget is exhausted
// before the frame completes.
var ErrCycleLimit = errors.New("npu: cycle limit reached before frame completion")

// ErrFrameFault is returned by Run when the controller latched the error
// state; the frame must be aborted and the system reset.
var ErrFrameFault = errors.New("npu: frame aborted on buffer fault")

// System wires the producer, buffer, credit counter, prefetcher, backing
// store, consumer, and controller into one synchronous pipeline. Each Step
// is one cycle; component updates within a step read the snapshot taken at
// the top of the step, so no component observes another's same-step update
// (the producer-writes-then-consumer-reads ordering is fixed by
// construction).
type System struct {
	mu sync.Mutex

	cfg   Config
	log   logger.Logger
	buf   *GroupBuffer
	cred  *CreditCounter
	pref  *Prefetcher
	store BackingStore
	prod  Producer
	cons  *Consumer
	ctrl  *Controller

	start bool

	metaQ []GroupMeta
	refQ  []*refRegion

	faultPending bool
	// a group partially written to the buffer must finish there even if the
	// controller enters bypass mid-group, or the partial group would never
	// become drainable
	partialInBuffer bool

	digest  hash.Hash64
	outputs []int32 // retained only when collect is set
	collect bool

	stats Stats
}

// NewSystem assembles a pipeline from a validated config, a producer, and a
// backing store.
func NewSystem(cfg Config, prod Producer, store BackingStore, log logger.Logger) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	s := &System{
		cfg:    cfg,
		log:    log.With("component", "npu"),
		buf:    NewGroupBuffer(cfg.DepthGroups, cfg.WordsPerGroup),
		cred:   NewCreditCounter(cfg.MaxCredits),
		store:  store,
		prod:   prod,
		cons:   NewConsumer(&cfg),
		ctrl:   NewController(&cfg),
		digest: fnv.New64a(),
	}
	s.pref = NewPrefetcher(&s.cfg, store)
	return s, nil
}

// CollectOutputs retains emitted samples in memory (test/debug aid).
func (s *System) CollectOutputs(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collect = on
}

// Outputs returns retained samples; empty unless CollectOutputs was set.
func (s *System) Outputs() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int32, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Start asserts or deasserts the external start line.
func (s *System) Start(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = on
}

// State returns the controller state.
func (s *System) State() SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// Stats returns a snapshot of the monitoring counters.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *System) snapshot() Stats {
	st := s.stats
	st.Occupancy = s.buf.Occupancy()
	st.Credits = s.cred.Count()
	st.StallCycles = s.ctrl.StallCount()
	st.StallCredit = s.ctrl.CreditStallCount()
	st.StallReference = s.cons.StallReference()
	st.BypassEntries = s.ctrl.BypassCount()
	st.Overflows = s.buf.Overflows()
	st.PrefetchRequests = s.pref.Issued()
	if m, ok := s.store.(interface {
		Requests() uint64
		Bytes() uint64
	}); ok {
		st.StoreRequests = m.Requests()
		st.StoreBytes = m.Bytes()
	}
	st.GroupsProduced = producedOf(s.prod)
	st.GroupsConsumed = s.cons.Consumed()
	st.OutputSamples = s.cons.Outputs()
	st.MACs = macsOf(s.prod)
	st.Digest = s.digest.Sum64()
	st.State = s.ctrl.State().String()
	st.Busy = s.ctrl.State() != StateIdle && s.ctrl.State() != StateDone && s.ctrl.State() != StateError
	st.Error = s.ctrl.State() == StateError
	return st
}

// Step advances the whole pipeline one cycle.
func (s *System) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
}

func (s *System) step() {
	// Snapshot of end-of-previous-step state.
	in := CtrlInputs{
		Start:           s.start,
		Occupancy:       s.buf.Occupancy(),
		Capacity:        s.buf.Capacity(),
		Full:            s.buf.Full(),
		Empty:           s.buf.Empty(),
		CreditAvailable: s.cred.Available(),
		Draining:        s.cons.Draining(),
		ConsumerIdle:    s.cons.Idle(),
		ProducerDone:    s.prod.Finished(),
		PrefetchBusy:    s.pref.Busy(),
		Fault:           s.faultPending,
	}
	s.faultPending = false

	out := s.ctrl.Step(in)

	s.stats.Cycles++
	s.stats.OccupancySum += uint64(in.Occupancy)
	if in.Occupancy > s.stats.MaxOccupancy {
		s.stats.MaxOccupancy = in.Occupancy
	}

	if s.ctrl.State() == StateError || s.ctrl.State() == StateIdle || s.ctrl.State() == StateDone {
		return
	}

	var creditProduce, creditConsume bool

	// Producer side: one write per step while producing. A group already
	// partially in the buffer keeps writing there even under bypass.
	routeBypass := out.Bypass && !s.partialInBuffer
	admit := out.ProducerEnable && !s.prod.InGroup()
	emit := (out.ProducerEnable || s.prod.InGroup()) && !in.Full
	if routeBypass {
		emit = out.ProducerEnable || s.prod.InGroup()
	}
	w, ok, meta := s.prod.Step(admit, emit, routeBypass)
	if ok {
		if routeBypass {
			// degraded path: the word bypasses the handoff buffer entirely
			s.emitOutput(w.Data)
			s.stats.BypassWords++
		} else {
			if err := s.buf.Write(w.Data, w.Last); err != nil {
				s.fault(err)
			} else {
				s.partialInBuffer = !w.Last
				if meta != nil {
					s.metaQ = append(s.metaQ, *meta)
					s.pref.Latch(meta.Coord)
					creditProduce = true
				}
			}
		}
	}

	// Prefetcher and backing store.
	if region := s.pref.Step(out.PrefetchEnable); region != nil {
		s.refQ = append(s.refQ, region)
	}
	s.store.Step()

	// Consumer side: one pop per step while draining.
	if err := s.cons.step(consumerIO{
		enabled:  out.ConsumerEnable,
		canBegin: s.buf.CompleteGroups() >= 1,
		peekMeta: func() (GroupMeta, bool) {
			if len(s.metaQ) == 0 {
				return GroupMeta{}, false
			}
			return s.metaQ[0], true
		},
		popMeta: func() { s.metaQ = s.metaQ[1:] },
		popRef: func(c GroupCoord) (*refRegion, bool) {
			if len(s.refQ) == 0 || s.refQ[0].req.Coord != c {
				return nil, false
			}
			r := s.refQ[0]
			s.refQ = s.refQ[1:]
			return r, true
		},
		read: func() (Word, error) { return s.buf.Read() },
		emit: func(sample int32) { s.emitOutput(sample) },
		drained: func() { creditConsume = true },
	}); err != nil {
		s.stats.Underflows++
		s.fault(err)
	}

	s.cred.Update(creditProduce, creditConsume)
}

func (s *System) fault(err error) {
	// fatal for the current frame; the controller latches error next step
	s.faultPending = true
	s.log.Error("buffer fault", "err", err, "cycle", s.stats.Cycles,
		"occupancy", s.buf.Occupancy(), "state", s.ctrl.State().String())
}

func (s *System) emitOutput(sample int32) {
	v := uint32(sample)
	_, _ = s.digest.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	if s.collect {
		s.outputs = append(s.outputs, sample)
	}
}

// Run drives the pipeline until the frame completes, the controller faults,
// the cycle budget runs out, or ctx is cancelled. The start line is held
// high until the producer finishes.
func (s *System) Run(ctx context.Context, maxCycles uint64) (Stats, error) {
	s.Start(true)
	for {
		if err := ctx.Err(); err != nil {
			return s.Stats(), err
		}

		s.mu.Lock()
		if s.prod.Finished() {
			s.start = false
		}
		s.step()
		state := s.ctrl.State()
		cycles := s.stats.Cycles
		s.mu.Unlock()

		switch {
		case state == StateError:
			return s.Stats(), ErrFrameFault
		case state == StateDone || (state == StateIdle && cycles > 1):
			st := s.Stats()
			st.State = StateDone.String()
			return st, nil
		case maxCycles > 0 && cycles >= maxCycles:
			return s.Stats(), fmt.Errorf("%w (cycles=%d)", ErrCycleLimit, cycles)
		}
	}
}

func producedOf(p Producer) uint64 {
	if tp, ok := p.(interface{ Produced() uint64 }); ok {
		return tp.Produced()
	}
	return 0
}

func macsOf(p Producer) uint64 {
	if tp, ok := p.(interface{ MACs() uint64 }); ok {
		return tp.MACs()
	}
	return 0
}
