// Package npu models the cross-engine dataflow core of the VCNPU: the
// group-atomic handoff buffer between the transform producer and the
// resampling consumer, credit-based admission, the reference-region
// prefetcher, and the adaptive global controller.
//
// Everything here is step-driven: one call to System.Step advances the whole
// pipeline by a single cycle, and each component's update reads only the
// state other components held at the end of the previous cycle.
package npu

import "errors"

var (
	// ErrOverflow is a write against a full buffer. Outside bypass mode this
	// is fatal for the current frame.
	ErrOverflow = errors.New("npu: buffer overflow")
	// ErrUnderflow is a read against an empty buffer. The consumer enable
	// line prevents this in correct operation, so it indicates a controller
	// defect and is surfaced the same way as overflow.
	ErrUnderflow = errors.New("npu: buffer underflow")
)

// Word is one buffer slot's payload: a sample and its group-terminator flag.
type Word struct {
	Data int32
	Last bool
}

// GroupCoord addresses a group within the frame's tile grid.
type GroupCoord struct {
	X int
	Y int
}

// Offset is a fractional sampling displacement in Q4 fixed point
// (16 units per pixel).
type Offset struct {
	X int32
	Y int32
}

// OffsetFracBits is the fixed-point precision of Offset components.
const OffsetFracBits = 4

// GroupMeta travels alongside a group's words: its tile coordinates and the
// per-tap offset grid the resampling consumer applies.
type GroupMeta struct {
	Seq     int
	Coord   GroupCoord
	Offsets []Offset
}

// Config fixes the pipeline geometry and timing for one frame. All fields
// are read-only for the duration of a run.
type Config struct {
	FrameWidth     int
	FrameHeight    int
	TileSize       int
	BytesPerSample int
	RefBase        uint32

	WordsPerGroup int
	DepthGroups   int
	MaxCredits    int

	GroupRows  int
	KernelSize int

	StallThreshold int

	// Producer timing: cycles of transform latency per group, plus seeded
	// jitter in [-Jitter, +Jitter].
	GroupPeriod int
	Jitter      int

	// Bypass selects the degraded pass-through path from the start; the
	// controller also enters it on its own under sustained backpressure.
	Bypass bool

	Seed int64
}

// Validate fills defaults and rejects geometry the pipeline cannot run.
func (c *Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return errors.New("npu: frame dimensions must be positive")
	}
	if c.TileSize <= 0 {
		return errors.New("npu: tile size must be positive")
	}
	// a full tile must fit in the prefetch request's 16-bit length field
	if c.TileSize*c.TileSize > 65535 {
		return errors.New("npu: tile area exceeds the 16-bit fetch length")
	}
	if c.BytesPerSample <= 0 {
		c.BytesPerSample = 2
	}
	if c.WordsPerGroup <= 0 {
		return errors.New("npu: words per group must be positive")
	}
	if c.DepthGroups <= 0 {
		return errors.New("npu: buffer depth must be positive")
	}
	if c.MaxCredits <= 0 {
		return errors.New("npu: max credits must be positive")
	}
	if c.GroupRows <= 0 {
		c.GroupRows = 4
	}
	if c.KernelSize <= 0 {
		c.KernelSize = 3
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = 64
	}
	if c.GroupPeriod <= 0 {
		c.GroupPeriod = 1
	}
	return nil
}

// GroupsPerFrame returns the number of tile groups covering the frame.
func (c *Config) GroupsPerFrame() int {
	tilesX := (c.FrameWidth + c.TileSize - 1) / c.TileSize
	tilesY := (c.FrameHeight + c.TileSize - 1) / c.TileSize
	return tilesX * tilesY
}
