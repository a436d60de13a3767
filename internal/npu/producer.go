package npu

import (
	"math/rand"

	"github.com/kestrelhw/vcnsim/internal/scu"
)

// Producer emits one group at a time: a fixed-length ordered word sequence
// with exactly one is_last word, plus the group's metadata on the done
// pulse. The system calls Step once per cycle.
type Producer interface {
	// Step advances one cycle. admit gates starting a new group, emit gates
	// offering the next word, bypass selects the untransformed path. ok is
	// true when a word is offered; meta is non-nil exactly on the is_last
	// word.
	Step(admit, emit, bypass bool) (w Word, ok bool, meta *GroupMeta)
	// Finished reports that every group of the frame has been emitted.
	Finished() bool
	// InGroup reports a group is mid-emission.
	InGroup() bool
}

type producerPhase int

const (
	prodIdle producerPhase = iota
	prodCompute
	prodEmit
)

// TransformProducer models the transform engine feeding the buffer: per
// group it spends the transform latency (pre-transform, sparse accumulate
// pass, post-transform), then streams the group's words one per cycle.
// Word values come from a real sparse accumulate pass over a synthesized
// activation tile, so the emitted stream is a deterministic function of the
// seed and the weight entries.
type TransformProducer struct {
	cfg     *Config
	rng     *rand.Rand
	engine  *scu.Engine
	entries []scu.Entry
	mode    scu.Mode

	tilesX int
	total  int

	phase     producerPhase
	countdown int
	seq       int
	words     []int32
	raw       []int32
	wi        int
	meta      GroupMeta

	produced uint64
	macs     uint64
}

// NewTransformProducer builds a producer for one frame. entries is the
// sparse weight list evaluated once per group's tile pass.
func NewTransformProducer(cfg *Config, entries []scu.Entry, mode scu.Mode) *TransformProducer {
	tilesX := (cfg.FrameWidth + cfg.TileSize - 1) / cfg.TileSize
	return &TransformProducer{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		engine:  scu.NewEngine(cfg.WordsPerGroup),
		entries: entries,
		mode:    mode,
		tilesX:  tilesX,
		total:   cfg.GroupsPerFrame(),
	}
}

// Produced returns the count of fully emitted groups.
func (p *TransformProducer) Produced() uint64 { return p.produced }

// MACs returns the multiply-accumulate operations performed so far.
func (p *TransformProducer) MACs() uint64 { return p.macs }

// Finished implements Producer.
func (p *TransformProducer) Finished() bool {
	return p.seq >= p.total && p.phase == prodIdle
}

// InGroup implements Producer.
func (p *TransformProducer) InGroup() bool { return p.phase == prodEmit }

// Step implements Producer.
func (p *TransformProducer) Step(admit, emit, bypass bool) (Word, bool, *GroupMeta) {
	switch p.phase {
	case prodIdle:
		if !admit || p.seq >= p.total {
			return Word{}, false, nil
		}
		p.beginGroup()
		p.phase = prodCompute
		return Word{}, false, nil

	case prodCompute:
		if p.countdown > 0 {
			p.countdown--
			return Word{}, false, nil
		}
		p.phase = prodEmit
		fallthrough

	case prodEmit:
		if !emit {
			return Word{}, false, nil
		}
		data := p.words[p.wi]
		if bypass {
			data = p.raw[p.wi]
		}
		last := p.wi == len(p.words)-1
		p.wi++
		w := Word{Data: data, Last: last}
		if !last {
			return w, true, nil
		}
		meta := p.meta
		p.produced++
		p.phase = prodIdle
		return w, true, &meta
	}
	return Word{}, false, nil
}

// beginGroup latches the next group's coordinates, synthesizes its
// activation tile, runs the sparse accumulate pass, and draws the offset
// grid for the resampling consumer.
func (p *TransformProducer) beginGroup() {
	coord := GroupCoord{X: p.seq % p.tilesX, Y: p.seq / p.tilesX}

	tileLen := 2 * p.cfg.WordsPerGroup
	tile := make([]int32, tileLen)
	for i := range tile {
		tile[i] = int32(p.rng.Intn(4096) - 2048)
	}

	p.engine.Clear()
	if err := p.engine.Compute(tile, p.entries, p.mode); err != nil {
		// Entries are validated at construction by the caller; a range
		// fault here means a broken weight list, surface as a zero group.
		p.words = make([]int32, p.cfg.WordsPerGroup)
	} else {
		acc := p.engine.Accumulators()
		p.words = make([]int32, p.cfg.WordsPerGroup)
		for i := range p.words {
			p.words[i] = scu.Saturate16(acc[i])
		}
		for _, ent := range p.entries {
			if ent.Enabled {
				p.macs++
			}
		}
	}
	p.raw = tile[:p.cfg.WordsPerGroup]
	p.wi = 0

	taps := p.cfg.KernelSize * p.cfg.KernelSize
	offsets := make([]Offset, taps)
	for i := range offsets {
		// within ±2 pixels in Q4
		offsets[i] = Offset{
			X: int32(p.rng.Intn(65) - 32),
			Y: int32(p.rng.Intn(65) - 32),
		}
	}
	p.meta = GroupMeta{Seq: p.seq, Coord: coord, Offsets: offsets}

	jitter := 0
	if p.cfg.Jitter > 0 {
		jitter = p.rng.Intn(2*p.cfg.Jitter+1) - p.cfg.Jitter
	}
	p.countdown = p.cfg.GroupPeriod + jitter
	if p.countdown < 1 {
		p.countdown = 1
	}
	p.seq++
}
