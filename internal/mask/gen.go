package mask

import (
	"math"
	"math/rand"
	"sort"

	"github.com/kestrelhw/vcnsim/pkg/smf"
)

// DefaultLayers is the residual-filter layer set masks are generated for
// when no explicit list is given.
func DefaultLayers() []LayerSpec {
	return []LayerSpec{
		{Name: "RFConv0", OutCh: 36, InCh: 36, Kernel: 3},
		{Name: "RFConv1", OutCh: 36, InCh: 36, Kernel: 3},
		{Name: "RFConv2", OutCh: 36, InCh: 36, Kernel: 3},
		{Name: "RFConv3", OutCh: 36, InCh: 36, Kernel: 3},
		{Name: "RFDeConv0", OutCh: 36, InCh: 36, Kernel: 4},
		{Name: "RFDeConv1", OutCh: 36, InCh: 36, Kernel: 4},
	}
}

// Generate synthesizes one layer's transform-domain mask. Weights are drawn
// from a Laplace distribution scaled per output and input channel, then the
// smallest magnitudes are dropped until exactly round(rho*total) survive.
func Generate(spec LayerSpec, rng *rand.Rand) smf.Layer {
	mu := MuForKernel(spec.Kernel)
	rho := KeepFraction(spec.Kernel)
	total := spec.OutCh * spec.InCh * mu * mu

	outScale := make([]float64, spec.OutCh)
	for i := range outScale {
		outScale[i] = 0.5 + rng.Float64()
	}
	inScale := make([]float64, spec.InCh)
	for i := range inScale {
		inScale[i] = 0.5 + rng.Float64()
	}

	weights := make([]float64, total)
	for o := 0; o < spec.OutCh; o++ {
		for i := 0; i < spec.InCh; i++ {
			scale := outScale[o] * inScale[i]
			base := (o*spec.InCh + i) * mu * mu
			for p := 0; p < mu*mu; p++ {
				weights[base+p] = laplace(rng) * scale
			}
		}
	}

	keep := int(math.Round(rho * float64(total)))
	if keep > total {
		keep = total
	}
	order := make([]int, total)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ma, mb := math.Abs(weights[order[a]]), math.Abs(weights[order[b]])
		if ma != mb {
			return ma > mb
		}
		return order[a] < order[b]
	})
	kept := make([]bool, total)
	for _, idx := range order[:keep] {
		kept[idx] = true
	}

	lay := smf.Layer{
		Name:     spec.Name,
		Shape:    [4]uint32{uint32(spec.OutCh), uint32(spec.InCh), uint32(mu), uint32(mu)},
		Coords:   make([][4]int32, 0, keep),
		Values:   make([]float32, 0, keep),
		Fraction: float32(rho),
	}
	for idx := 0; idx < total; idx++ {
		if !kept[idx] {
			continue
		}
		p := idx % (mu * mu)
		ch := idx / (mu * mu)
		lay.Coords = append(lay.Coords, [4]int32{
			int32(ch / spec.InCh),
			int32(ch % spec.InCh),
			int32(p / mu),
			int32(p % mu),
		})
		lay.Values = append(lay.Values, float32(weights[idx]))
	}
	return lay
}

// GenerateAll produces masks for every spec with a shared stream so the
// whole set is reproducible from one seed.
func GenerateAll(specs []LayerSpec, seed int64) []smf.Layer {
	rng := rand.New(rand.NewSource(seed))
	out := make([]smf.Layer, len(specs))
	for i, spec := range specs {
		out[i] = Generate(spec, rng)
	}
	return out
}

// laplace draws from the unit Laplace distribution. A draw of exactly 0 maps
// to -Inf through the inverse CDF and would dominate the magnitude ordering,
// so it is redrawn.
func laplace(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return laplaceInv(u)
}

// laplaceInv maps a uniform draw in (0, 1) through the Laplace inverse CDF.
func laplaceInv(u float64) float64 {
	u -= 0.5
	if u >= 0 {
		return -math.Log(1 - 2*u)
	}
	return math.Log(1 + 2*u)
}
