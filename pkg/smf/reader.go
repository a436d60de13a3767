package smf

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// File is a validated, read-only view of an SMF file.
type File struct {
	data    []byte
	Header  Header
	Records []LayerRecord
	mmapped bool
}

// Open maps an SMF file read-only and validates its structure. If mmap is
// unavailable it falls back to reading the file into memory. The returned
// file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < smfHeaderSize {
		return nil, ErrCorruptFile
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	mmapped := true
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// fallback: plain read
		mmapped = false
		data = make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
	}

	out := &File{data: data, mmapped: mmapped}
	if err := out.parse(); err != nil {
		_ = out.Close()
		return nil, err
	}
	return out, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f.mmapped && f.data != nil {
		data := f.data
		f.data = nil
		return unix.Munmap(data)
	}
	f.data = nil
	return nil
}

func (f *File) parse() error {
	buf := f.data
	copy(f.Header.Magic[:], buf[0:4])
	f.Header.Major = binary.LittleEndian.Uint16(buf[4:6])
	f.Header.Minor = binary.LittleEndian.Uint16(buf[6:8])
	f.Header.HeaderSize = binary.LittleEndian.Uint32(buf[8:12])
	f.Header.LayerCount = binary.LittleEndian.Uint32(buf[12:16])
	f.Header.DirOffset = binary.LittleEndian.Uint64(buf[16:24])
	f.Header.FileSize = binary.LittleEndian.Uint64(buf[24:32])

	if string(f.Header.Magic[:]) != MagicSMF {
		return ErrInvalidMagic
	}
	if !f.Header.Compatible() {
		return ErrUnsupportedMajor
	}
	if !f.Header.Valid() {
		return ErrCorruptFile
	}
	if f.Header.FileSize > uint64(len(buf)) {
		return ErrCorruptFile
	}
	bufLen := uint64(len(buf))
	// offsets are checked against the file size before any length is added,
	// so a corrupt entry cannot wrap the sum past the bound
	if f.Header.DirOffset < smfHeaderSize || f.Header.DirOffset > bufLen {
		return ErrCorruptFile
	}
	dirEnd := f.Header.DirOffset + uint64(f.Header.LayerCount)*smfDirEntSize
	if dirEnd > bufLen {
		return ErrCorruptFile
	}

	f.Records = make([]LayerRecord, f.Header.LayerCount)
	for i := range f.Records {
		ent := buf[f.Header.DirOffset+uint64(i)*smfDirEntSize:][:smfDirEntSize]
		rec := &f.Records[i]
		rec.Name = strings.TrimRight(string(ent[0:LayerNameLen]), "\x00")
		for s := 0; s < 4; s++ {
			rec.Shape[s] = binary.LittleEndian.Uint32(ent[LayerNameLen+4*s:])
		}
		rec.Count = binary.LittleEndian.Uint32(ent[40:44])
		rec.Fraction = math.Float32frombits(binary.LittleEndian.Uint32(ent[44:48]))
		rec.CoordsOff = binary.LittleEndian.Uint64(ent[48:56])
		rec.ValuesOff = binary.LittleEndian.Uint64(ent[56:64])

		if rec.CoordsOff > bufLen || rec.ValuesOff > bufLen {
			return ErrCorruptFile
		}
		coordsEnd := rec.CoordsOff + uint64(rec.Count)*16
		valuesEnd := rec.ValuesOff + uint64(rec.Count)*4
		if coordsEnd > bufLen || valuesEnd > bufLen {
			return ErrCorruptFile
		}
	}
	return nil
}

// Layer decodes one layer by name.
func (f *File) Layer(name string) (Layer, error) {
	for i := range f.Records {
		if f.Records[i].Name == name {
			return f.decode(&f.Records[i]), nil
		}
	}
	return Layer{}, ErrLayerNotFound
}

// Layers decodes every layer in directory order.
func (f *File) Layers() []Layer {
	out := make([]Layer, len(f.Records))
	for i := range f.Records {
		out[i] = f.decode(&f.Records[i])
	}
	return out
}

func (f *File) decode(rec *LayerRecord) Layer {
	lay := Layer{
		Name:     rec.Name,
		Shape:    rec.Shape,
		Fraction: rec.Fraction,
		Coords:   make([][4]int32, rec.Count),
		Values:   make([]float32, rec.Count),
	}
	cb := f.data[rec.CoordsOff:]
	for i := uint32(0); i < rec.Count; i++ {
		for j := 0; j < 4; j++ {
			lay.Coords[i][j] = int32(binary.LittleEndian.Uint32(cb[16*i+uint32(4*j):]))
		}
	}
	vb := f.data[rec.ValuesOff:]
	for i := uint32(0); i < rec.Count; i++ {
		lay.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(vb[4*i:]))
	}
	return lay
}
