package npu

import "github.com/kestrelhw/vcnsim/internal/scu"

// consumerPhase is the drain FSM: pop the group's words, run the kernel taps
// against the prefetched reference region, emit the output positions.
type consumerPhase int

const (
	consIdle consumerPhase = iota
	consPop
	consTapDispatch
	consTapSample
	consEmit
)

// Consumer drains exactly one group per activation and combines its features
// with reference data fetched by the prefetcher. Sampling hardware issues
// one request at a time: a tap's sample has a one-step latency and the next
// tap's dispatch waits for the previous result to be consumed.
type Consumer struct {
	cfg *Config

	phase    consumerPhase
	draining bool

	features []int32
	popped   int

	meta   GroupMeta
	region *refRegion
	tap    int
	acc    []int64

	emitted int

	consumed       uint64
	outputs        uint64
	stallMeta      uint64
	stallReference uint64
}

// NewConsumer creates the drain engine.
func NewConsumer(cfg *Config) *Consumer {
	return &Consumer{
		cfg:      cfg,
		features: make([]int32, 0, cfg.WordsPerGroup),
		acc:      make([]int64, cfg.GroupRows*cfg.GroupRows),
	}
}

// Draining reports a group mid-drain. Once set it cannot be cleared by the
// controller; the group is drained to completion.
func (c *Consumer) Draining() bool { return c.draining }

// Idle reports the consumer is between groups.
func (c *Consumer) Idle() bool { return c.phase == consIdle }

// Consumed returns the count of fully drained groups.
func (c *Consumer) Consumed() uint64 { return c.consumed }

// Outputs returns the count of emitted output samples.
func (c *Consumer) Outputs() uint64 { return c.outputs }

// StallReference returns steps stalled waiting on reference data.
func (c *Consumer) StallReference() uint64 { return c.stallReference }

// consumerIO is the consumer's per-step view of the rest of the system.
type consumerIO struct {
	enabled bool
	// canBegin is true when a complete group is resident in the buffer.
	canBegin bool
	peekMeta func() (GroupMeta, bool)
	popMeta  func()
	popRef   func(GroupCoord) (*refRegion, bool)
	read     func() (Word, error)
	emit     func(sample int32)
	drained  func() // group's last word popped
}

// step advances one cycle. It returns a buffer error (underflow) if one
// occurred; the controller treats that as fatal.
func (c *Consumer) step(io consumerIO) error {
	switch c.phase {
	case consIdle:
		if !io.enabled || !io.canBegin {
			return nil
		}
		meta, ok := io.peekMeta()
		if !ok {
			// words of a complete group are resident but its metadata pulse
			// has not been latched yet; wait.
			c.stallMeta++
			return nil
		}
		region, ok := io.popRef(meta.Coord)
		if !ok {
			c.stallReference++
			return nil
		}
		io.popMeta()
		c.meta = meta
		c.region = region
		c.features = c.features[:0]
		c.popped = 0
		c.draining = true
		c.phase = consPop
		return nil

	case consPop:
		w, err := io.read()
		if err != nil {
			return err
		}
		c.features = append(c.features, w.Data)
		c.popped++
		if w.Last {
			c.draining = false
			io.drained()
			c.tap = 0
			for i := range c.acc {
				c.acc[i] = 0
			}
			c.phase = consTapDispatch
		}
		return nil

	case consTapDispatch:
		// sample request in flight; result lands next step
		c.phase = consTapSample
		return nil

	case consTapSample:
		c.sampleTap(c.tap)
		c.tap++
		if c.tap < c.cfg.KernelSize*c.cfg.KernelSize {
			c.phase = consTapDispatch
		} else {
			c.emitted = 0
			c.phase = consEmit
		}
		return nil

	case consEmit:
		io.emit(scu.Saturate16(c.acc[c.emitted]))
		c.outputs++
		c.emitted++
		if c.emitted == len(c.acc) {
			c.consumed++
			c.region = nil
			c.phase = consIdle
		}
		return nil
	}
	return nil
}

// sampleTap accumulates one kernel tap into every output position: the tap's
// offset-displaced reference sample, bilinearly weighted over its four
// neighbors, scaled by the tap's feature word.
func (c *Consumer) sampleTap(tap int) {
	k := c.cfg.KernelSize
	kr := tap / k
	kc := tap % k
	off := c.meta.Offsets[tap]
	feature := int64(c.features[tap%len(c.features)])

	rows := c.cfg.GroupRows
	for pos := range c.acc {
		pr := pos / rows
		pc := pos % rows
		// Q4 sample point inside the reference region
		sx := int32(pc+kc)<<OffsetFracBits + off.X
		sy := int32(pr+kr)<<OffsetFracBits + off.Y
		c.acc[pos] += int64(c.bilinear(sx, sy)) * feature >> (2 * OffsetFracBits)
	}
}

// bilinear samples four neighboring reference values around a Q4 point,
// returning the weighted sum still scaled by 2^(2*OffsetFracBits).
func (c *Consumer) bilinear(sx, sy int32) int64 {
	const unit = int64(1) << OffsetFracBits
	fx := int64(sx) & (unit - 1)
	fy := int64(sy) & (unit - 1)
	x0 := int(sx >> OffsetFracBits)
	y0 := int(sy >> OffsetFracBits)

	w := c.regionWidth()
	h := c.regionHeight()

	v00 := int64(c.refAt(x0, y0, w, h))
	v01 := int64(c.refAt(x0+1, y0, w, h))
	v10 := int64(c.refAt(x0, y0+1, w, h))
	v11 := int64(c.refAt(x0+1, y0+1, w, h))

	top := v00*(unit-fx) + v01*fx
	bot := v10*(unit-fx) + v11*fx
	return top*(unit-fy) + bot*fy
}

func (c *Consumer) regionWidth() int {
	if c.region == nil || len(c.region.words) == 0 {
		return 1
	}
	// region is effW×effH row-major; width shrinks only at the right edge
	w := c.cfg.TileSize
	if len(c.region.words) < w {
		w = len(c.region.words)
	}
	return w
}

func (c *Consumer) regionHeight() int {
	if c.region == nil {
		return 1
	}
	w := c.regionWidth()
	h := len(c.region.words) / w
	if h < 1 {
		h = 1
	}
	return h
}

// refAt reads a reference sample with clamp-to-edge addressing.
func (c *Consumer) refAt(x, y, w, h int) int32 {
	if c.region == nil || len(c.region.words) == 0 {
		return 0
	}
	if x < 0 {
		x = 0
	}
	if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= h {
		y = h - 1
	}
	idx := y*w + x
	if idx >= len(c.region.words) {
		idx = len(c.region.words) - 1
	}
	return c.region.words[idx]
}
