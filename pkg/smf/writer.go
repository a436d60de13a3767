package smf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Writer builds an SMF file layer by layer. Space for the header is
// reserved up-front and patched in Finalise.
type Writer struct {
	f       *os.File
	layers  []LayerRecord
	seen    map[string]struct{}
	off     uint64
	closed  bool
	scratch [8]byte
}

// NewWriter creates a writer targeting the given file, truncating it.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("smf: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	w := &Writer{f: f, seen: make(map[string]struct{})}
	if err := w.writeZeros(smfHeaderSize); err != nil {
		return nil, err
	}
	return w, nil
}

// AddLayer appends one layer's coordinates and values. Layer names must be
// unique and fit the fixed directory name field.
func (w *Writer) AddLayer(name string, shape [4]uint32, coords [][4]int32, values []float32, fraction float32) error {
	if w.closed {
		return errors.New("smf: writer finalised")
	}
	if len(name) == 0 || len(name) > LayerNameLen {
		return fmt.Errorf("smf: layer name %q must be 1..%d bytes", name, LayerNameLen)
	}
	if _, dup := w.seen[name]; dup {
		return fmt.Errorf("smf: duplicate layer %q", name)
	}
	if len(coords) != len(values) {
		return fmt.Errorf("smf: layer %q: %d coords vs %d values", name, len(coords), len(values))
	}

	if err := w.align(); err != nil {
		return err
	}
	coordsOff := w.off
	for _, c := range coords {
		for _, v := range c {
			if err := w.writeU32(uint32(v)); err != nil {
				return err
			}
		}
	}

	if err := w.align(); err != nil {
		return err
	}
	valuesOff := w.off
	for _, v := range values {
		if err := w.writeU32(math.Float32bits(v)); err != nil {
			return err
		}
	}

	w.seen[name] = struct{}{}
	w.layers = append(w.layers, LayerRecord{
		Name:      name,
		Shape:     shape,
		Count:     uint32(len(coords)),
		Fraction:  fraction,
		CoordsOff: coordsOff,
		ValuesOff: valuesOff,
	})
	return nil
}

// Finalise writes the directory and patches the header. The writer cannot
// be used afterwards.
func (w *Writer) Finalise() error {
	if w.closed {
		return errors.New("smf: writer finalised")
	}
	if len(w.layers) == 0 {
		return errors.New("smf: no layers written")
	}
	w.closed = true

	if err := w.align(); err != nil {
		return err
	}
	dirOffset := w.off

	for _, rec := range w.layers {
		var name [LayerNameLen]byte
		copy(name[:], rec.Name)
		if _, err := w.f.Write(name[:]); err != nil {
			return err
		}
		w.off += LayerNameLen
		for _, s := range rec.Shape {
			if err := w.writeU32(s); err != nil {
				return err
			}
		}
		if err := w.writeU32(rec.Count); err != nil {
			return err
		}
		if err := w.writeU32(math.Float32bits(rec.Fraction)); err != nil {
			return err
		}
		if err := w.writeU64(rec.CoordsOff); err != nil {
			return err
		}
		if err := w.writeU64(rec.ValuesOff); err != nil {
			return err
		}
	}

	hdr := Header{
		Major:      CurrentMajor,
		Minor:      CurrentMinor,
		HeaderSize: smfHeaderSize,
		LayerCount: uint32(len(w.layers)),
		DirOffset:  dirOffset,
		FileSize:   w.off,
	}
	copy(hdr.Magic[:], MagicSMF)

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var buf [smfHeaderSize]byte
	copy(buf[0:4], hdr.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], hdr.Major)
	binary.LittleEndian.PutUint16(buf[6:8], hdr.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], hdr.HeaderSize)
	binary.LittleEndian.PutUint32(buf[12:16], hdr.LayerCount)
	binary.LittleEndian.PutUint64(buf[16:24], hdr.DirOffset)
	binary.LittleEndian.PutUint64(buf[24:32], hdr.FileSize)
	if _, err := w.f.Write(buf[:]); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) writeU32(v uint32) error {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	_, err := w.f.Write(w.scratch[:4])
	w.off += 4
	return err
}

func (w *Writer) writeU64(v uint64) error {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	_, err := w.f.Write(w.scratch[:8])
	w.off += 8
	return err
}

func (w *Writer) writeZeros(n int) error {
	zero := make([]byte, n)
	_, err := w.f.Write(zero)
	w.off += uint64(n)
	return err
}

func (w *Writer) align() error {
	pad := int((smfAlign - w.off%smfAlign) % smfAlign)
	if pad == 0 {
		return nil
	}
	return w.writeZeros(pad)
}
