// Package smf implements the Sparse Mask File container: per-layer
// transform-domain nonzero coordinates and weight values, written once by
// the mask generator and mapped read-only by the simulator.
package smf

const (
	MagicSMF = "SMF\x00"

	// Current Major Version: 1 (breaking changes only)
	CurrentMajor uint16 = 1

	// Current Minor Version
	CurrentMinor uint16 = 0
)

const (
	smfHeaderSize = 32
	smfDirEntSize = 64
	smfAlign      = 8

	// LayerNameLen is the fixed directory-entry name field width.
	LayerNameLen = 24
)

// Header is the fixed-size file prologue.
type Header struct {
	Magic      [4]byte
	Major      uint16
	Minor      uint16
	HeaderSize uint32
	LayerCount uint32
	DirOffset  uint64
	FileSize   uint64
}

// Valid checks structural sanity independent of version.
func (h *Header) Valid() bool {
	if string(h.Magic[:]) != MagicSMF {
		return false
	}
	if h.HeaderSize < smfHeaderSize {
		return false
	}
	if h.LayerCount == 0 {
		return false
	}
	return true
}

// Compatible reports whether this reader understands the file.
func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}
