package npu

// GroupBuffer is the bounded, group-atomic handoff channel between the
// transform producer and the resampling consumer. Storage is a circular
// sequence of word slots addressed by independent write/read cursors with a
// live occupancy count; the is_last flag is stored alongside each word so
// the reader recovers group boundaries exactly as they were written.
type GroupBuffer struct {
	slots []Word
	wr    int
	rd    int
	occ   int

	writes    uint64
	reads     uint64
	overflows uint64

	groupsIn  uint64
	groupsOut uint64
}

// NewGroupBuffer sizes the buffer for depthGroups complete groups.
func NewGroupBuffer(depthGroups, wordsPerGroup int) *GroupBuffer {
	return &GroupBuffer{slots: make([]Word, depthGroups*wordsPerGroup)}
}

// Capacity returns the total word slot count.
func (b *GroupBuffer) Capacity() int { return len(b.slots) }

// Occupancy returns the number of live words.
func (b *GroupBuffer) Occupancy() int { return b.occ }

// Full reports occupancy == capacity.
func (b *GroupBuffer) Full() bool { return b.occ == len(b.slots) }

// Empty reports occupancy == 0.
func (b *GroupBuffer) Empty() bool { return b.occ == 0 }

// Overflows returns the count of rejected writes.
func (b *GroupBuffer) Overflows() uint64 { return b.overflows }

// Write stores a word and its terminator flag. A write against a full
// buffer is rejected with ErrOverflow and stores nothing.
func (b *GroupBuffer) Write(data int32, last bool) error {
	if b.Full() {
		b.overflows++
		return ErrOverflow
	}
	b.slots[b.wr] = Word{Data: data, Last: last}
	b.wr++
	if b.wr == len(b.slots) {
		b.wr = 0
	}
	b.occ++
	b.writes++
	if last {
		b.groupsIn++
	}
	return nil
}

// CompleteGroups returns how many fully written groups remain readable,
// counting a group until its last word is popped. The consumer begins a
// drain only when this is at least one, so a partial group is never visible
// mid-write.
func (b *GroupBuffer) CompleteGroups() int {
	return int(b.groupsIn - b.groupsOut)
}

// Read returns the oldest word and its flag in strict write order. A read
// against an empty buffer is rejected with ErrUnderflow.
func (b *GroupBuffer) Read() (Word, error) {
	if b.Empty() {
		return Word{}, ErrUnderflow
	}
	w := b.slots[b.rd]
	b.rd++
	if b.rd == len(b.slots) {
		b.rd = 0
	}
	b.occ--
	b.reads++
	if w.Last {
		b.groupsOut++
	}
	return w, nil
}
