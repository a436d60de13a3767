package mask

import (
	"fmt"
	"os"

	"github.com/kestrelhw/vcnsim/pkg/smf"
)

// Save writes a mask set to path as an SMF file.
func Save(path string, layers []smf.Layer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w, err := smf.NewWriter(f)
	if err != nil {
		return err
	}
	for _, lay := range layers {
		if err := w.AddLayer(lay.Name, lay.Shape, lay.Coords, lay.Values, lay.Fraction); err != nil {
			return fmt.Errorf("layer %s: %w", lay.Name, err)
		}
	}
	return w.Finalise()
}

// Load reads every mask layer from an SMF file.
func Load(path string) ([]smf.Layer, error) {
	f, err := smf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return f.Layers(), nil
}
