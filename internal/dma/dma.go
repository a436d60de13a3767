// Package dma models the backing store behind the region prefetcher: a
// fixed-latency, bandwidth-limited read engine that acknowledges a request
// and then streams data words one per cycle. Only the request/response
// contract is modeled; the physical memory technology is out of scope.
package dma

import "sort"

type request struct {
	tag       uint32
	addr      uint32
	length    uint16
	issueAt   uint64
	ackAt     uint64
	doneAt    uint64
	collected bool
}

// Engine is a single-channel read engine. Requests complete after the fixed
// latency plus ceil(bytes / bandwidth) transfer cycles, then stream one word
// per cycle until the region is delivered.
type Engine struct {
	latency        uint64
	bytesPerCycle  float64
	bytesPerSample int
	maxOutstanding int
	seed           int64

	cycle    uint64
	nextTag  uint32
	inflight map[uint32]*request

	requests uint64
	bytes    uint64
}

// NewEngine creates a backing-store model. Data content is a pure function
// of (seed, address), so replaying a run reproduces the identical reference
// stream regardless of request timing.
func NewEngine(latency int, bytesPerCycle float64, bytesPerSample, maxOutstanding int, seed int64) *Engine {
	if bytesPerCycle < 1 {
		bytesPerCycle = 1
	}
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	if maxOutstanding <= 0 {
		maxOutstanding = 1
	}
	return &Engine{
		latency:        uint64(latency),
		bytesPerCycle:  bytesPerCycle,
		bytesPerSample: bytesPerSample,
		maxOutstanding: maxOutstanding,
		seed:           seed,
		nextTag:        1,
		inflight:       make(map[uint32]*request),
	}
}

// Issue accepts a read request, returning its tag. ok is false when the
// engine is saturated; the caller retries on a later cycle.
func (e *Engine) Issue(addr uint32, length uint16) (uint32, bool) {
	if len(e.inflight) >= e.maxOutstanding {
		return 0, false
	}
	bytes := uint64(length) * uint64(e.bytesPerSample)
	transfer := uint64((float64(bytes) + e.bytesPerCycle - 1) / e.bytesPerCycle)
	if transfer == 0 {
		transfer = 1
	}
	req := &request{
		tag:     e.nextTag,
		addr:    addr,
		length:  length,
		issueAt: e.cycle,
		ackAt:   e.cycle + e.latency,
		doneAt:  e.cycle + e.latency + transfer,
	}
	e.nextTag++
	e.inflight[req.tag] = req
	e.requests++
	e.bytes += bytes
	return req.tag, true
}

// Step advances the engine one cycle.
func (e *Engine) Step() { e.cycle++ }

// Acked reports whether the request's acknowledgement pulse has fired.
func (e *Engine) Acked(tag uint32) bool {
	r, ok := e.inflight[tag]
	return ok && e.cycle >= r.ackAt
}

// Complete reports whether the request's full data stream has arrived.
func (e *Engine) Complete(tag uint32) bool {
	r, ok := e.inflight[tag]
	return ok && e.cycle >= r.doneAt
}

// Words returns the fetched samples for a completed request and retires it.
// The content is synthesized deterministically from the address.
func (e *Engine) Words(tag uint32) []int32 {
	r, ok := e.inflight[tag]
	if !ok || e.cycle < r.doneAt {
		return nil
	}
	delete(e.inflight, tag)
	words := make([]int32, r.length)
	for i := range words {
		words[i] = e.wordAt(r.addr + uint32(i)*uint32(e.bytesPerSample))
	}
	return words
}

// Outstanding returns the number of requests in flight.
func (e *Engine) Outstanding() int { return len(e.inflight) }

// Requests returns the total accepted request count.
func (e *Engine) Requests() uint64 { return e.requests }

// Bytes returns the total bytes read.
func (e *Engine) Bytes() uint64 { return e.bytes }

// InflightAddrs returns the addresses currently in flight, sorted. Used by
// instrumentation only.
func (e *Engine) InflightAddrs() []uint32 {
	out := make([]uint32, 0, len(e.inflight))
	for _, r := range e.inflight {
		out = append(out, r.addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// wordAt mixes the seed and address into a pseudo-random 12-bit signed
// sample (splitmix64 finalizer).
func (e *Engine) wordAt(addr uint32) int32 {
	x := uint64(e.seed) ^ (uint64(addr) * 0x9e3779b97f4a7c15)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return int32(x&0xfff) - 2048
}
