// Package scu implements the sparse accumulate engine: the multiply-accumulate
// primitive that turns an activation tile and a sparse weight list into
// per-destination sums.
package scu

import (
	"errors"
	"fmt"
)

// Mode selects the accumulator partitioning and the source index range.
type Mode int

const (
	// ModeConv partitions the accumulator space into three equal banks and
	// reads sources from the transform-reduced half of the tile.
	ModeConv Mode = iota
	// ModeDeconv collapses to a single flat bank spanning all accumulators
	// and reads the full tile.
	ModeDeconv
)

func (m Mode) String() string {
	switch m {
	case ModeConv:
		return "conv"
	case ModeDeconv:
		return "deconv"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const numBanks = 3

var (
	ErrSrcRange = errors.New("scu: source index out of range for mode")
	ErrDstRange = errors.New("scu: destination index out of range")
)

// Entry is one sparse contribution: tile[Src] * Weight added into the
// accumulator addressed by (Dst, mode, position in the entry list).
type Entry struct {
	Weight  int32
	Src     int
	Dst     int
	Enabled bool
}

// Engine holds the accumulator banks for one tile pass.
//
// Accumulators are 64-bit so a full pass cannot overflow regardless of the
// 16-bit sample and weight ranges; width reduction happens at readout via
// Saturate16.
type Engine struct {
	bankSize int
	acc      []int64
}

// NewEngine creates an engine with three banks of bankSize accumulators.
// ModeDeconv addresses the same storage as one flat bank of 3*bankSize.
func NewEngine(bankSize int) *Engine {
	return &Engine{
		bankSize: bankSize,
		acc:      make([]int64, numBanks*bankSize),
	}
}

// BankSize returns the per-bank accumulator count.
func (e *Engine) BankSize() int { return e.bankSize }

// Clear zeroes every accumulator. Call before a new tile's pass.
func (e *Engine) Clear() {
	for i := range e.acc {
		e.acc[i] = 0
	}
}

// Accumulators returns a copy of the current accumulator contents.
func (e *Engine) Accumulators() []int64 {
	out := make([]int64, len(e.acc))
	copy(out, e.acc)
	return out
}

// Compute runs one pass: every enabled entry's product is added into its
// destination accumulator. Multiple entries may share a destination in the
// same pass; the pass builds the complete next-state image from the current
// accumulator values plus all contributions, then commits it in one step, so
// no contribution is lost to a same-pass read-after-write hazard.
func (e *Engine) Compute(tile []int32, entries []Entry, mode Mode) error {
	srcLimit := len(tile)
	if mode == ModeConv {
		// Conv-mode entries index the transform-reduced window.
		srcLimit = (len(tile) + 1) / 2
	}

	next := make([]int64, len(e.acc))
	copy(next, e.acc)

	for i, ent := range entries {
		if !ent.Enabled {
			continue
		}
		if ent.Src < 0 || ent.Src >= srcLimit {
			return fmt.Errorf("%w: src=%d limit=%d mode=%s", ErrSrcRange, ent.Src, srcLimit, mode)
		}
		addr, err := e.dstAddr(i, len(entries), ent.Dst, mode)
		if err != nil {
			return err
		}
		next[addr] += int64(tile[ent.Src]) * int64(ent.Weight)
	}

	// Commit the full image atomically with respect to the pass.
	copy(e.acc, next)
	return nil
}

// dstAddr maps an entry to its accumulator address. In conv mode the bank is
// chosen by which third of the entry list produced the entry; in deconv mode
// the whole space is one flat bank.
func (e *Engine) dstAddr(idx, total, dst int, mode Mode) (int, error) {
	switch mode {
	case ModeConv:
		if dst < 0 || dst >= e.bankSize {
			return 0, fmt.Errorf("%w: dst=%d bank size=%d", ErrDstRange, dst, e.bankSize)
		}
		bank := 0
		if total > 0 {
			bank = idx * numBanks / total
			if bank >= numBanks {
				bank = numBanks - 1
			}
		}
		return bank*e.bankSize + dst, nil
	default:
		if dst < 0 || dst >= len(e.acc) {
			return 0, fmt.Errorf("%w: dst=%d flat size=%d", ErrDstRange, dst, len(e.acc))
		}
		return dst, nil
	}
}

// Saturate16 reduces an accumulator value to a signed 16-bit sample.
func Saturate16(v int64) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int32(v)
}
