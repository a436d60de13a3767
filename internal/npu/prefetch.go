package npu

// BackingStore is the request/response contract of the external reference
// memory. Issue starts a fetch and returns a tag; Step advances the store
// one cycle; Complete reports whether that fetch's acknowledgement and full
// data stream have arrived; Words returns the fetched samples once complete.
// There is no intrinsic timeout: an unacknowledged request waits
// indefinitely absent an external watchdog.
type BackingStore interface {
	Issue(addr uint32, length uint16) (tag uint32, ok bool)
	Step()
	Complete(tag uint32) bool
	Words(tag uint32) []int32
}

// PrefetchRequest is one reference-region fetch, derived from a group's
// frame coordinates with the region clipped to frame bounds.
type PrefetchRequest struct {
	Addr   uint32
	Length uint16
	Coord  GroupCoord
}

// PrefetchState is the prefetcher's four-state sequence.
type PrefetchState int

const (
	PrefetchIdle PrefetchState = iota
	PrefetchCalcAddr
	PrefetchIssue
	PrefetchWaitAck
)

func (s PrefetchState) String() string {
	switch s {
	case PrefetchIdle:
		return "idle"
	case PrefetchCalcAddr:
		return "calc_addr"
	case PrefetchIssue:
		return "issue"
	case PrefetchWaitAck:
		return "wait_ack"
	default:
		return "unknown"
	}
}

// refRegion is a completed fetch handed to the consumer side.
type refRegion struct {
	req   PrefetchRequest
	words []int32
}

// Prefetcher translates group coordinates into backing-store address ranges
// and fetches reference data ahead of the consumer's need. One request is
// outstanding at a time; while waiting on an acknowledgement it pre-computes
// the next latched group's request so address math never delays the next
// issue.
type Prefetcher struct {
	frameWidth     int
	frameHeight    int
	tileSize       int
	bytesPerSample int
	base           uint32

	store BackingStore

	state   PrefetchState
	pending []GroupCoord
	cur     PrefetchRequest
	tag     uint32

	// look-ahead: next request pre-computed during WaitAck
	next      PrefetchRequest
	nextReady bool

	issued  uint64
	fetched uint64
	bytes   uint64
}

// NewPrefetcher wires a prefetcher to its backing store.
func NewPrefetcher(cfg *Config, store BackingStore) *Prefetcher {
	return &Prefetcher{
		frameWidth:     cfg.FrameWidth,
		frameHeight:    cfg.FrameHeight,
		tileSize:       cfg.TileSize,
		bytesPerSample: cfg.BytesPerSample,
		base:           cfg.RefBase,
		store:          store,
	}
}

// State returns the current FSM state.
func (p *Prefetcher) State() PrefetchState { return p.state }

// Busy reports whether a fetch is in progress or latched.
func (p *Prefetcher) Busy() bool {
	return p.state != PrefetchIdle || len(p.pending) > 0
}

// Issued returns the total requests issued.
func (p *Prefetcher) Issued() uint64 { return p.issued }

// Bytes returns the total bytes requested.
func (p *Prefetcher) Bytes() uint64 { return p.bytes }

// Latch records a completed group's coordinates for fetching. Called on the
// producer's group_done pulse.
func (p *Prefetcher) Latch(c GroupCoord) {
	p.pending = append(p.pending, c)
}

// ComputeRequest maps group coordinates to a backing-store range. The
// region's effective width and height shrink at the frame's right and
// bottom edges rather than reading past the frame; edge clipping is normal
// operation, not an error.
func (p *Prefetcher) ComputeRequest(c GroupCoord) PrefetchRequest {
	pixelX := c.X * p.tileSize
	pixelY := c.Y * p.tileSize

	effW := p.tileSize
	if pixelX+effW > p.frameWidth {
		effW = p.frameWidth - pixelX
		if effW < 0 {
			effW = 0
		}
	}
	effH := p.tileSize
	if pixelY+effH > p.frameHeight {
		effH = p.frameHeight - pixelY
		if effH < 0 {
			effH = 0
		}
	}

	addr := p.base + uint32(pixelY*p.frameWidth+pixelX)*uint32(p.bytesPerSample)
	return PrefetchRequest{Addr: addr, Length: uint16(effW * effH), Coord: c}
}

// Step advances the FSM one cycle. It returns a completed region when a
// fetch finishes, nil otherwise.
func (p *Prefetcher) Step(enabled bool) *refRegion {
	switch p.state {
	case PrefetchIdle:
		if !enabled || len(p.pending) == 0 {
			return nil
		}
		p.state = PrefetchCalcAddr

	case PrefetchCalcAddr:
		coord := p.pending[0]
		p.pending = p.pending[1:]
		if p.nextReady && p.next.Coord == coord {
			p.cur = p.next
		} else {
			p.cur = p.ComputeRequest(coord)
		}
		p.nextReady = false
		p.state = PrefetchIssue

	case PrefetchIssue:
		tag, ok := p.store.Issue(p.cur.Addr, p.cur.Length)
		if !ok {
			// store busy; retry next cycle
			return nil
		}
		p.tag = tag
		p.issued++
		p.bytes += uint64(p.cur.Length) * uint64(p.bytesPerSample)
		p.state = PrefetchWaitAck

	case PrefetchWaitAck:
		// Look-ahead: address math for the next latched group happens here,
		// off the critical path of the next issue.
		if !p.nextReady && len(p.pending) > 0 {
			p.next = p.ComputeRequest(p.pending[0])
			p.nextReady = true
		}
		if p.store.Complete(p.tag) {
			p.fetched++
			region := &refRegion{req: p.cur, words: p.store.Words(p.tag)}
			p.state = PrefetchIdle
			return region
		}
	}
	return nil
}
