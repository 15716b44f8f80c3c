// Package server implements the Acceptor/Supervisor: it binds the
// listening socket, accepts connections non-blockingly, spawns a
// ConnectionWorker per client, reaps completed workers, and orchestrates
// shutdown on signal.
//
// Ground: aesdsocket.c's main() — the SLIST of thread_data, the
// non-blocking accept loop with an EAGAIN busy-wait, and the
// reap-after-each-accept pattern — rehosted onto the teacher's
// Run(ctx)-plus-signal-handler idiom from internal/agent/agent.go and
// internal/cli/agent.go. Where the reference spins on accept()/EAGAIN,
// this core uses a listener read deadline and polls at pollInterval
// (the design notes explicitly prefer a poll/epoll-equivalent over a
// bare busy loop; the observable contract — bounded shutdown latency —
// is the same either way).
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aesdsocket/aesdsocket/internal/aesderr"
	"github.com/aesdsocket/aesdsocket/internal/config"
	"github.com/aesdsocket/aesdsocket/internal/connection"
	"github.com/aesdsocket/aesdsocket/internal/diagnostics"
	"github.com/aesdsocket/aesdsocket/internal/sharedlog"
	"github.com/aesdsocket/aesdsocket/internal/ticker"
)

// State is one of the Acceptor/Supervisor's four lifecycle states.
type State int

const (
	StateStarting State = iota
	StateListening
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// pollInterval bounds how long the accept loop blocks between shutdown-
// flag checks, the Go stand-in for the reference's EAGAIN busy-wait.
const pollInterval = 200 * time.Millisecond

// Supervisor owns the listen socket, the SharedLog, the TimestampTicker,
// and the worker list for every connected client.
type Supervisor struct {
	cfg  *config.Config
	diag *diagnostics.Buffer

	state State

	listener *net.TCPListener
	log      *sharedlog.Log
	tick     *ticker.Ticker
	tickStop chan struct{}

	// workers and its companion done channel are single-writer: only
	// the goroutine running Run/acceptLoop/drain mutates them, matching
	// §5's "worker list is single-writer by construction."
	workers map[string]*connection.State
	done    chan string
}

// New constructs a Supervisor for cfg. diag may be nil.
func New(cfg *config.Config, diag *diagnostics.Buffer) *Supervisor {
	return &Supervisor{cfg: cfg, diag: diag}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State { return s.state }

func (s *Supervisor) setState(st State) {
	s.state = st
	log.Printf("[supervisor] state -> %s", st)
}

// Run drives the full Starting -> Listening -> Draining -> Stopped
// lifecycle. It blocks until ctx is cancelled or a SIGINT/SIGTERM
// arrives, then drains gracefully and returns nil. A daemonizing parent
// returns nil immediately after handing the listening socket to its
// child.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateStarting)

	if s.cfg.Daemonize && !isDaemonChild() {
		ln, err := bindListener(s.cfg.Port, s.cfg.Backlog)
		if err != nil {
			return fmt.Errorf("binding listener: %w", err)
		}
		if err := daemonize(ln); err != nil {
			ln.Close()
			return fmt.Errorf("daemonizing: %w", err)
		}
		ln.Close()
		log.Printf("[supervisor] daemonized, parent exiting")
		return nil
	}

	var ln *net.TCPListener
	var err error
	if isDaemonChild() {
		ln, err = inheritedListener()
	} else {
		ln, err = bindListener(s.cfg.Port, s.cfg.Backlog)
	}
	if err != nil {
		return fmt.Errorf("acquiring listener: %w", err)
	}
	s.listener = ln

	sharedLog, err := sharedlog.Open(s.cfg.LogPath)
	if err != nil {
		ln.Close()
		return fmt.Errorf("opening log: %w", err)
	}
	s.log = sharedLog

	s.workers = make(map[string]*connection.State)
	s.done = make(chan string)
	s.tickStop = make(chan struct{})
	s.tick = ticker.New(s.log, s.cfg.TickInterval)
	go s.tick.Run(s.tickStop)

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("[supervisor] received signal %v, shutting down", sig)
		case <-ctx.Done():
			log.Printf("[supervisor] context cancelled, shutting down")
		}
		close(stop)
	}()
	defer signal.Stop(sigCh)

	s.setState(StateListening)
	if err := s.acceptLoop(stop); err != nil {
		log.Printf("[supervisor] accept loop error: %v", err)
	}

	s.setState(StateDraining)
	s.drain()

	s.setState(StateStopped)
	return nil
}

// acceptLoop accepts connections until stop is closed, spawning a
// ConnectionWorker per client and reaping completed workers after every
// accept (success or timeout), per §4.7.
func (s *Supervisor) acceptLoop(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		s.listener.SetDeadline(time.Now().Add(pollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.reapCompleted()
				continue
			}
			select {
			case <-stop:
				return nil
			default:
			}
			return aesderr.Wrap("server.accept", aesderr.IO, err)
		}

		st := connection.NewState(conn)
		s.workers[st.ID] = st
		log.Printf("[supervisor] accepted connection %s from %s", st.ID, conn.RemoteAddr())

		w := connection.NewWorker(st, s.log)
		go w.Run(stop, s.done)

		s.reapCompleted()
	}
}

// reapCompleted drains the done channel without blocking, closing the
// client socket and unlinking each finished worker from the list.
func (s *Supervisor) reapCompleted() {
	for {
		select {
		case id := <-s.done:
			s.reap(id)
		default:
			return
		}
	}
}

func (s *Supervisor) reap(id string) {
	st, ok := s.workers[id]
	if !ok {
		return
	}
	st.Conn.Close()
	delete(s.workers, id)
	log.Printf("[supervisor] closed connection %s", id)
}

// drain stops accepting, blocks reaping completed workers until the list
// is empty, stops the ticker, and unlinks the log file.
func (s *Supervisor) drain() {
	s.listener.Close()
	close(s.tickStop)

	for len(s.workers) > 0 {
		id := <-s.done
		s.reap(id)
	}

	if err := s.log.Unlink(); err != nil {
		log.Printf("[supervisor] error on syscall: unlink: %v", err)
	}
	if err := s.log.Close(); err != nil {
		log.Printf("[supervisor] error closing log: %v", err)
	}
}
