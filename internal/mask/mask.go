// Package mask handles transform-domain sparsity masks: mock generation,
// SMF persistence, the per-SCU work mapping, and MAC estimation.
package mask

import (
	"github.com/kestrelhw/vcnsim/internal/scu"
	"github.com/kestrelhw/vcnsim/pkg/smf"
)

// LayerSpec describes one transform layer whose mask is generated.
type LayerSpec struct {
	Name   string
	OutCh  int
	InCh   int
	Kernel int
}

// MuForKernel returns the transform-domain kernel extent: 3x3 spatial
// kernels transform to 4x4, 4x4 deconvolution kernels to 6x6.
func MuForKernel(k int) int {
	switch k {
	case 3:
		return 4
	case 4:
		return 6
	default:
		return k + 1
	}
}

// KeepFraction returns the transform-domain density retained for a kernel
// size: 0.375 for conv layers, 0.50 for deconv layers.
func KeepFraction(k int) float64 {
	if k == 4 {
		return 0.50
	}
	return 0.375
}

// SCUCounts maps a layer's nonzero coordinates onto a rows×cols SCU grid:
// output channels are blocked over rows, input channels over columns. The
// result is the per-unit nonzero count used to derive pass latency.
func SCUCounts(lay smf.Layer, rows, cols int) []int64 {
	counts := make([]int64, rows*cols)
	if len(lay.Coords) == 0 {
		return counts
	}
	outCh := int(lay.Shape[0])
	inCh := int(lay.Shape[1])
	outPerRow := ceilDiv(outCh, rows)
	inPerCol := ceilDiv(inCh, cols)
	if outPerRow < 1 {
		outPerRow = 1
	}
	if inPerCol < 1 {
		inPerCol = 1
	}
	for _, c := range lay.Coords {
		r := int(c[0]) / outPerRow
		if r > rows-1 {
			r = rows - 1
		}
		col := int(c[1]) / inPerCol
		if col > cols-1 {
			col = cols - 1
		}
		counts[r*cols+col]++
	}
	return counts
}

// EstimateMACs approximates per-layer multiply counts for a frame: each
// transform-domain nonzero contributes one multiply per output patch, with
// patches on a half-resolution grid.
func EstimateMACs(layers []smf.Layer, frameH, frameW int) (map[string]uint64, uint64) {
	patches := uint64(ceilDiv(frameH, 2)) * uint64(ceilDiv(frameW, 2))
	byLayer := make(map[string]uint64, len(layers))
	var total uint64
	for _, lay := range layers {
		macs := uint64(len(lay.Coords)) * patches
		byLayer[lay.Name] = macs
		total += macs
	}
	return byLayer, total
}

// weightScale converts float mask values to fixed-point engine weights.
const weightScale = 64

// Entries converts a mask layer into the sparse entry list evaluated by the
// accumulate engine: weights are quantized to fixed point, sources fold the
// transform-domain position into srcSpan, destinations fold the output
// channel into dstSpan.
func Entries(lay smf.Layer, srcSpan, dstSpan int) []scu.Entry {
	mu := int(lay.Shape[2])
	if mu < 1 {
		mu = 1
	}
	out := make([]scu.Entry, 0, len(lay.Coords))
	for i, c := range lay.Coords {
		w := int32(lay.Values[i] * weightScale)
		if w == 0 {
			// quantized to nothing; keep the entry disabled so the list
			// length (and bank mapping) still matches the mask
			out = append(out, scu.Entry{Enabled: false})
			continue
		}
		src := (int(c[2])*mu + int(c[3])) % srcSpan
		dst := int(c[0]) % dstSpan
		out = append(out, scu.Entry{Weight: w, Src: src, Dst: dst, Enabled: true})
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
