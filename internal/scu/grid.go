package scu

// Grid models the physical SCU array: rows × cols units, each with a fixed
// number of parallel multipliers. It converts a per-unit work assignment into
// a pass latency (the slowest unit bounds the pass).
type Grid struct {
	Rows        int
	Cols        int
	Multipliers int
}

// Units returns the number of compute units in the grid.
func (g Grid) Units() int { return g.Rows * g.Cols }

// PassCycles returns the cycles needed for one pass given the multiply count
// assigned to each unit. Each unit retires Multipliers products per cycle.
func (g Grid) PassCycles(assigned []int64) int {
	if g.Multipliers <= 0 {
		return 0
	}
	var worst int64
	for _, n := range assigned {
		c := (n + int64(g.Multipliers) - 1) / int64(g.Multipliers)
		if c > worst {
			worst = c
		}
	}
	return int(worst)
}

// Scale multiplies a per-unit nonzero count vector by the patch count of a
// tile, yielding the multiply assignment for one pass over that tile.
func Scale(counts []int64, patches int) []int64 {
	out := make([]int64, len(counts))
	for i, n := range counts {
		out[i] = n * int64(patches)
	}
	return out
}
