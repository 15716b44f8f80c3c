// Package chardevice implements the stateful write accumulator that
// frames incoming bytes into newline-delimited records, commits them to
// a ring.Buffer, serves reads by file position, and supports a
// "seek to (record, offset-in-record)" control operation.
//
// It is the Go counterpart of aesd-char-driver's aesd_read/aesd_write/
// aesd_llseek/aesd_ioctl, generalized from a kernel character device to
// a plain struct any host shell (a test harness, a CLI, an in-process
// caller) can drive directly. It is an independent core from the
// LineServer packages: it has no dependency on sharedlog or connection,
// only on ring, bytevector and aesderr.
package chardevice

import (
	"context"

	"github.com/aesdsocket/aesdsocket/internal/aesderr"
	"github.com/aesdsocket/aesdsocket/internal/bytevector"
	"github.com/aesdsocket/aesdsocket/internal/ring"
)

// Whence selects the reference point for Seek, mirroring io.Seeker's
// constants (the reference uses SEEK_SET/SEEK_CUR/SEEK_END with the same
// meaning).
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// ControlCode enumerates the device's ioctl-style control operations.
// The reference dispatches a single numbered ioctl
// (AESDCHAR_IOCSEEKTO) and rejects any other code; SeekTo is the only
// code this core recognizes.
type ControlCode int

const (
	SeekTo ControlCode = iota
)

// Device holds the ring of committed records, the in-progress staging
// buffer, and the single coarse mutex covering both. There are no
// per-handle locks; concurrency is serialized at the device, matching
// §5 of the reference design.
type Device struct {
	mu      chan struct{} // binary semaphore; see lock/unlock below
	ring    *ring.Buffer
	staging *bytevector.Vector
}

// New constructs a Device whose ring holds up to capacity records.
func New(capacity int) *Device {
	d := &Device{
		mu:      make(chan struct{}, 1),
		ring:    ring.New(capacity),
		staging: bytevector.New(),
	}
	d.mu <- struct{}{}
	return d
}

// lock acquires the device's coarse mutex, honoring ctx cancellation the
// way the kernel honors a signal arriving during
// mutex_lock_interruptible: a cancelled context yields Interrupted
// instead of blocking, and the caller is expected to retry. A nil ctx
// behaves like context.Background (never interruptible), matching
// callers that have no interruption source of their own.
func (d *Device) lock(ctx context.Context) error {
	if ctx == nil {
		<-d.mu
		return nil
	}
	if err := ctx.Err(); err != nil {
		return aesderr.Wrap("chardevice.lock", aesderr.Interrupted, err)
	}
	select {
	case <-d.mu:
		return nil
	case <-ctx.Done():
		return aesderr.Wrap("chardevice.lock", aesderr.Interrupted, ctx.Err())
	}
}

func (d *Device) unlock() { d.mu <- struct{}{} }

// Handle represents an open file-like position into the device. The
// reference has no per-handle state beyond a pointer to the shared
// core plus the kernel's own f_pos; Handle plays the f_pos role.
type Handle struct {
	dev *Device
	pos int
}

// Open returns a new Handle at position 0. There is no per-handle state
// beyond the shared core pointer and position.
func (d *Device) Open() *Handle {
	return &Handle{dev: d}
}

// Close is a no-op on the handle; the device itself is torn down via
// Device.Close.
func (h *Handle) Close() error { return nil }

// Write forwards p to the shared device; writes do not use or move the
// handle's position.
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	return h.dev.Write(ctx, p)
}

// Read copies at most len(p) bytes starting at the handle's read
// position, never crossing a record boundary (the caller must iterate to
// drain multiple records). Returns 0 with no error at end of stream.
//
// The reference's read had an evident defect: it copied from
// entry->buffptr instead of entry->buffptr+offset. This implementation
// preserves the intended, corrected behavior of copying from
// buffptr+offset, per the spec's explicit resolution of that Open
// Question.
func (h *Handle) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := h.dev.lock(ctx); err != nil {
		return 0, err
	}
	defer h.dev.unlock()

	rec, byteInSlot, ok := h.dev.ring.FindByOffset(h.pos)
	if !ok {
		return 0, nil
	}

	remaining := rec.Size() - byteInSlot
	n := len(p)
	if remaining < n {
		n = remaining
	}
	copy(p[:n], rec.Data[byteInSlot:byteInSlot+n])
	h.pos += n
	return n, nil
}

// ReadAt reads up to max bytes starting at the absolute position pos,
// independent of any handle's cursor, so the device can be drained
// without mutating per-handle position state. Like Read, it never crosses
// a record boundary.
func (d *Device) ReadAt(ctx context.Context, pos int, max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.unlock()

	rec, byteInSlot, ok := d.ring.FindByOffset(pos)
	if !ok {
		return nil, nil
	}
	remaining := rec.Size() - byteInSlot
	n := max
	if remaining < n {
		n = remaining
	}
	out := make([]byte, n)
	copy(out, rec.Data[byteInSlot:byteInSlot+n])
	return out, nil
}

// Write appends bytes to the staging buffer, commits every complete
// (newline-terminated) line found in the newly staged region to the
// ring, and leaves any trailing partial line staged for the next write.
// It always reports that all input bytes were consumed, matching the
// reference's "bytes_written == count" contract on success.
func (d *Device) Write(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := d.lock(ctx); err != nil {
		return 0, err
	}
	defer d.unlock()

	if err := d.staging.Append(p); err != nil {
		return 0, aesderr.Wrap("chardevice.write", aesderr.ResourceExhausted, err)
	}

	cursor := 0
	for {
		nl := d.staging.Find(cursor, '\n')
		if nl < 0 {
			break
		}
		line := make([]byte, nl+1-cursor)
		copy(line, d.staging.Bytes()[cursor:nl+1])

		evicted, err := d.ring.Add(ring.Record{Data: line})
		if err != nil {
			return 0, err
		}
		_ = evicted // ownership released to GC; kernel original kfree()s it here

		cursor = nl + 1
	}

	if cursor > 0 {
		if err := d.staging.Carryover(cursor); err != nil {
			return 0, aesderr.Wrap("chardevice.write", aesderr.InvalidArgument, err)
		}
	}

	return len(p), nil
}

// Seek computes a new handle position from whence and offset, rejecting
// any result that would exceed the device's total byte length or
// underflow below zero.
func (h *Handle) Seek(ctx context.Context, whence Whence, offset int) (int, error) {
	if err := h.dev.lock(ctx); err != nil {
		return 0, err
	}
	defer h.dev.unlock()

	var base int
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = h.pos
	case SeekEnd:
		base = h.dev.ring.TotalBytes()
	default:
		return 0, aesderr.New("chardevice.seek", aesderr.InvalidArgument)
	}

	newPos := base + offset
	total := h.dev.ring.TotalBytes()
	if newPos < 0 || newPos > total {
		return 0, aesderr.New("chardevice.seek", aesderr.InvalidArgument)
	}

	h.pos = newPos
	return newPos, nil
}

// ControlSeek resolves (recordIndex, byteInRecord) to an absolute offset
// via the ring and repositions the handle there. It is the Go analogue of
// the reference's AESDCHAR_IOCSEEKTO ioctl; any other control code is
// rejected as InvalidArgument (not-a-valid-control-code).
func (h *Handle) ControlSeek(ctx context.Context, code ControlCode, recordIndex, byteInRecord int) error {
	if code != SeekTo {
		return aesderr.New("chardevice.control", aesderr.InvalidArgument)
	}
	if err := h.dev.lock(ctx); err != nil {
		return err
	}
	defer h.dev.unlock()

	pos, err := h.dev.ring.FindPositionFor(recordIndex, byteInRecord)
	if err != nil {
		return err
	}
	h.pos = pos
	return nil
}

// Close releases every live slot's payload (by dropping references to
// GC) and any residual staging buffer, the Go equivalent of the
// reference's AESD_CIRCULAR_BUFFER_FOREACH teardown loop.
func (d *Device) Close() error {
	if err := d.lock(nil); err != nil {
		return err
	}
	defer d.unlock()

	d.ring.Reset()
	d.staging.Reset()
	return nil
}
