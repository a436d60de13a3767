package smf

import "errors"

var (
	ErrInvalidMagic     = errors.New("invalid SMF magic")
	ErrUnsupportedMajor = errors.New("unsupported SMF major version")
	ErrCorruptFile      = errors.New("corrupt SMF file")
	ErrLayerNotFound    = errors.New("layer not found in SMF file")
)
