// Package ring implements a fixed-slot circular buffer of owned byte
// records with FIFO eviction and concatenated-offset addressing.
//
// It plays the same role as aesd-circular-buffer.c's struct
// aesd_circular_buffer, generalized from a kernel-fixed array of 10
// entries to a configurable capacity, and shaped like the teacher's own
// logbuf.Buffer (position/full bookkeeping) — except a Record here is a
// variable-length owned payload, not a fixed log Entry, slots are
// addressed by concatenated byte offset rather than by index, and the
// ring holds no mutex of its own.
package ring

import "github.com/aesdsocket/aesdsocket/internal/aesderr"

// DefaultCapacity matches the reference embedding's AESDCHAR_MAX_WRITE_OPERATIONS_SUPPORTED.
const DefaultCapacity = 10

// Record is one newline-terminated line, including its trailing '\n'.
// Zero-size records must never be inserted.
type Record struct {
	Data []byte
}

// Size returns the record's byte length.
func (r Record) Size() int { return len(r.Data) }

// Buffer is a fixed array of N slots plus in/out/full bookkeeping. It is
// not safe for concurrent use by itself; callers (CharDevice) supply their
// own mutex, matching the kernel original where "any necessary locking
// must be performed by caller."
type Buffer struct {
	slots []Record
	in    int
	out   int
	full  bool
}

// New creates an empty ring of the given capacity. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{slots: make([]Record, capacity)}
}

// Cap returns the ring's fixed slot count.
func (b *Buffer) Cap() int { return len(b.slots) }

// LiveCount returns the number of occupied slots.
func (b *Buffer) LiveCount() int {
	switch {
	case b.full:
		return len(b.slots)
	case b.in == b.out:
		return 0
	case b.in > b.out:
		return b.in - b.out
	default:
		return len(b.slots) - b.out + b.in
	}
}

// TotalBytes returns the sum of sizes of all live slots.
func (b *Buffer) TotalBytes() int {
	total := 0
	b.ForEachLive(func(r Record) { total += r.Size() })
	return total
}

// Add inserts record, evicting the oldest slot if the ring is full. It
// returns the evicted record's data (nil if nothing was evicted); the
// caller now owns that slice, matching the reference's transfer of the
// evicted buffptr back to the caller for release.
//
// Inserting a zero-size record is a programmer error in this core
// (producers only ever hand it complete, newline-terminated lines) and is
// rejected as InvalidArgument rather than silently corrupting offset math.
func (b *Buffer) Add(record Record) ([]byte, error) {
	if record.Size() == 0 {
		return nil, aesderr.New("ring.add", aesderr.InvalidArgument)
	}

	var evicted []byte
	if b.full {
		evicted = b.slots[b.out].Data
		b.slots[b.out] = Record{}
		b.out = (b.out + 1) % len(b.slots)
	}

	b.slots[b.in] = record
	b.in = (b.in + 1) % len(b.slots)
	b.full = b.in == b.out

	return evicted, nil
}

// FindByOffset walks live slots from out, returning the slot holding the
// byte at concatenated position pos and the byte's offset within that
// slot. Returns ok=false if pos is at or past the total byte length.
func (b *Buffer) FindByOffset(pos int) (rec Record, byteInSlot int, ok bool) {
	if pos < 0 {
		return Record{}, 0, false
	}
	count := 0
	live := b.LiveCount()
	for i := 0; i < live; i++ {
		idx := (b.out + i) % len(b.slots)
		size := b.slots[idx].Size()
		if count+size > pos {
			return b.slots[idx], pos - count, true
		}
		count += size
	}
	return Record{}, 0, false
}

// FindPositionFor converts a (record_index, byte_in_record) pair — counted
// from the oldest live slot — into an absolute concatenated offset.
func (b *Buffer) FindPositionFor(recordIndex, byteInRecord int) (int, error) {
	live := b.LiveCount()
	if recordIndex < 0 || recordIndex >= live {
		return 0, aesderr.New("ring.find_position_for", aesderr.InvalidArgument)
	}
	pos := 0
	for i := 0; i < recordIndex; i++ {
		idx := (b.out + i) % len(b.slots)
		pos += b.slots[idx].Size()
	}
	target := b.slots[(b.out+recordIndex)%len(b.slots)]
	if byteInRecord < 0 || byteInRecord >= target.Size() {
		return 0, aesderr.New("ring.find_position_for", aesderr.InvalidArgument)
	}
	return pos + byteInRecord, nil
}

// ForEachLive invokes visitor on each live slot in age order, oldest
// first. Used by teardown to release every live payload.
func (b *Buffer) ForEachLive(visitor func(Record)) {
	live := b.LiveCount()
	for i := 0; i < live; i++ {
		idx := (b.out + i) % len(b.slots)
		visitor(b.slots[idx])
	}
}

// Reset returns the ring to its empty initial state, as aesd_circular_buffer_init does.
func (b *Buffer) Reset() {
	for i := range b.slots {
		b.slots[i] = Record{}
	}
	b.in, b.out, b.full = 0, 0, false
}
