package chardevice

import (
	"context"
	"testing"

	"github.com/aesdsocket/aesdsocket/internal/aesderr"
)

func TestWriteFramingCommitsCompleteLinesOnly(t *testing.T) {
	d := New(10)
	h := d.Open()

	n, err := h.Write(context.Background(), []byte("hello\nwor"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len("hello\nwor") {
		t.Fatalf("n = %d, want %d", n, len("hello\nwor"))
	}

	if got := d.ring.TotalBytes(); got != len("hello\n") {
		t.Fatalf("committed bytes = %d, want %d", got, len("hello\n"))
	}
	if got := d.staging.Len(); got != len("wor") {
		t.Fatalf("staged bytes = %d, want %d", got, len("wor"))
	}

	if _, err := h.Write(context.Background(), []byte("ld\n")); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if got := d.ring.TotalBytes(); got != len("hello\nworld\n") {
		t.Fatalf("committed bytes after second write = %d, want %d", got, len("hello\nworld\n"))
	}
	if got := d.staging.Len(); got != 0 {
		t.Fatalf("staged bytes after flush = %d, want 0", got)
	}

	out := make([]byte, 64)
	total := 0
	for {
		hr := d.Open()
		hr.pos = total
		nr, err := hr.Read(context.Background(), out[total:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if nr == 0 {
			break
		}
		total += nr
	}
	if string(out[:total]) != "hello\nworld\n" {
		t.Fatalf("replayed = %q, want %q", out[:total], "hello\nworld\n")
	}
}

func TestSeekToEndThenOneByteRejected(t *testing.T) {
	d := New(10)
	h := d.Open()

	if _, err := h.Write(context.Background(), []byte("hello\nworld\n")); err != nil {
		t.Fatal(err)
	}

	pos, err := h.Seek(context.Background(), SeekSet, 12)
	if err != nil {
		t.Fatalf("seek to 12: %v", err)
	}
	if pos != 12 {
		t.Fatalf("seek pos = %d, want 12", pos)
	}

	if _, err := h.Seek(context.Background(), SeekSet, 13); err == nil {
		t.Fatal("expected error seeking past end of stream")
	} else if !aesderr.Is(err, aesderr.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestSeekEndAndNegativeRejected(t *testing.T) {
	d := New(10)
	h := d.Open()
	if _, err := h.Write(context.Background(), []byte("abc\n")); err != nil {
		t.Fatal(err)
	}

	pos, err := h.Seek(context.Background(), SeekEnd, 0)
	if err != nil {
		t.Fatalf("seek end: %v", err)
	}
	if pos != 4 {
		t.Fatalf("seek end pos = %d, want 4", pos)
	}

	if _, err := h.Seek(context.Background(), SeekSet, -1); err == nil {
		t.Fatal("expected error for negative seek")
	}
}

func TestControlSeekRoundTrip(t *testing.T) {
	d := New(10)
	h := d.Open()
	if _, err := h.Write(context.Background(), []byte("hello\nworld\n")); err != nil {
		t.Fatal(err)
	}

	if err := h.ControlSeek(context.Background(), SeekTo, 1, 2); err != nil {
		t.Fatalf("control seek: %v", err)
	}
	if h.pos != len("hello\n")+2 {
		t.Fatalf("pos after control seek = %d, want %d", h.pos, len("hello\n")+2)
	}

	if err := h.ControlSeek(context.Background(), ControlCode(99), 0, 0); err == nil {
		t.Fatal("expected error for unknown control code")
	}
	if err := h.ControlSeek(context.Background(), SeekTo, 5, 0); err == nil {
		t.Fatal("expected error for out-of-range record index")
	}
}

func TestWriteInterruptedByCancelledContext(t *testing.T) {
	d := New(10)
	h := d.Open()

	d.mu = make(chan struct{}) // unbuffered, never primed: lock() will block
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Write(ctx, []byte("x\n"))
	if err == nil {
		t.Fatal("expected Interrupted error")
	}
	if !aesderr.Is(err, aesderr.Interrupted) {
		t.Fatalf("err = %v, want Interrupted", err)
	}
}

func TestCloseResetsRingAndStaging(t *testing.T) {
	d := New(10)
	h := d.Open()
	if _, err := h.Write(context.Background(), []byte("abc\npartial")); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.ring.TotalBytes() != 0 {
		t.Fatalf("ring not reset")
	}
	if d.staging.Len() != 0 {
		t.Fatalf("staging not reset")
	}
}
