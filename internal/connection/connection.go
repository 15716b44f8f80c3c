// Package connection implements the per-client ConnectionWorker: receive
// bytes until a newline, write each complete line to the shared log, then
// replay the entire log back to the client.
//
// Ground: aesdsocket.c's handle_connection (200-byte recv chunks, a
// ByteVector accumulator, write-then-replay under the shared mutex),
// reframed with the teacher's worker-lifecycle idiom from
// internal/agent/scheduler.go — there a map tracks whether a monitor's
// check is still "running"; here each worker instead reports its own
// exit by sending its ID on a completion channel, the reformulation spec
// §9 explicitly suggests in place of the reference's polled "complete"
// boolean.
package connection

import (
	"bufio"
	"io"
	"log"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/aesdsocket/aesdsocket/internal/aesderr"
	"github.com/aesdsocket/aesdsocket/internal/bytevector"
	"github.com/aesdsocket/aesdsocket/internal/sharedlog"
)

// recvChunkSize matches CHUNK_SIZE in the reference.
const recvChunkSize = 200

// State is the per-worker bookkeeping the supervisor needs to track a
// live connection: its ID (for log correlation) and its socket. The
// completion channel the worker signals on exit is passed to Worker.Run.
type State struct {
	ID   string
	Conn net.Conn
}

// NewState wraps conn with a fresh UUID identity, the way
// cli/init.go mints a node ID with uuid.New().String() — here used per
// accepted connection instead of per node, so concurrent client activity
// is traceable in the logs.
func NewState(conn net.Conn) *State {
	return &State{ID: uuid.New().String(), Conn: conn}
}

// Worker drives one ConnectionState's receive/append/replay loop against
// a shared log. It owns a receive ByteVector across iterations (carrying
// over a trailing partial line); replay reads the log through a bufio.Reader
// rather than a send ByteVector.
type Worker struct {
	state *State
	log   *sharedlog.Log
	recv  *bytevector.Vector
}

// NewWorker constructs a Worker for state, appending to and replaying log.
func NewWorker(state *State, log *sharedlog.Log) *Worker {
	return &Worker{state: state, log: log, recv: bytevector.New()}
}

// Run executes the receive/append/replay loop until the peer closes the
// connection, an I/O error terminates the worker, or stop is closed. It
// does not abandon an in-progress send or write: the shutdown flag is
// polled only at iteration boundaries, never mid-operation. On return it
// sends its own ID on done so the supervisor can reap it; it does not
// close the socket itself — that is the supervisor's job, after join.
func (w *Worker) Run(stop <-chan struct{}, done chan<- string) {
	defer func() { done <- w.state.ID }()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := w.receiveUntilNewline(); err != nil {
			if aesderr.Is(err, aesderr.PeerClosed) {
				return
			}
			log.Printf("[worker %s] %v", w.state.ID, err)
			return
		}

		if err := w.appendThenReplay(); err != nil {
			log.Printf("[worker %s] %v", w.state.ID, err)
			return
		}
	}
}

// receiveUntilNewline reads from the socket in recvChunkSize chunks,
// appending each chunk to the receive vector, scanning for '\n' from the
// start of the newly appended region after every chunk.
func (w *Worker) receiveUntilNewline() error {
	chunk := make([]byte, recvChunkSize)

	for {
		prevLen := w.recv.Len()
		n, err := w.state.Conn.Read(chunk)
		if n > 0 {
			if aerr := w.recv.Append(chunk[:n]); aerr != nil {
				return aesderr.Wrap("connection.recv", aesderr.ResourceExhausted, aerr)
			}
			if w.recv.Find(prevLen, '\n') >= 0 {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return aesderr.New("connection.recv", aesderr.PeerClosed)
			}
			return aesderr.Wrap("connection.recv", aesderr.IO, err)
		}
		if n == 0 {
			return aesderr.New("connection.recv", aesderr.PeerClosed)
		}
	}
}

// appendThenReplay writes every complete line currently staged in the
// receive vector to the log (each append atomic at line granularity),
// carries over any trailing partial line, then replays the full log back
// to the client.
func (w *Worker) appendThenReplay() error {
	cursor := 0
	for {
		nl := w.recv.Find(cursor, '\n')
		if nl < 0 {
			break
		}
		line := w.recv.Bytes()[cursor : nl+1]
		if err := w.log.Append(line); err != nil {
			return aesderr.Wrap("connection.append", aesderr.IO, err)
		}
		cursor = nl + 1
	}

	if cursor == w.recv.Len() {
		w.recv.Reset()
	} else if err := w.recv.Carryover(cursor); err != nil {
		return aesderr.Wrap("connection.append", aesderr.InvalidArgument, err)
	}

	return w.replay()
}

// replay holds the log's mutex across the entire read-and-send pass, per
// the spec-preferred option in §5: seek to 0, then read and emit complete
// lines until EOF, so no other writer's bytes can interleave mid-replay.
func (w *Worker) replay() error {
	return w.log.WithLock(func(f *os.File) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return aesderr.Wrap("connection.replay", aesderr.IO, err)
		}

		reader := bufio.NewReader(f)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				if _, werr := w.state.Conn.Write(line); werr != nil {
					return aesderr.Wrap("connection.replay", aesderr.IO, werr)
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return aesderr.Wrap("connection.replay", aesderr.IO, err)
			}
		}
	})
}
