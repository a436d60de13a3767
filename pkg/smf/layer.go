package smf

// LayerRecord is one directory entry: where a layer's coordinate and value
// payloads live in the file.
//
// Payload layout: coords are Count quadruples of little-endian int32
// (out-channel, in-channel, row, col); values are Count little-endian
// float32, both 8-byte aligned.
type LayerRecord struct {
	Name      string
	Shape     [4]uint32
	Count     uint32
	Fraction  float32
	CoordsOff uint64
	ValuesOff uint64
}

// Layer is a fully decoded mask layer.
type Layer struct {
	Name     string
	Shape    [4]uint32
	Coords   [][4]int32
	Values   []float32
	Fraction float32
}
