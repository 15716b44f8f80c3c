package server

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// daemonChildEnv marks a re-exec'd process as the already-detached child,
// so it does not try to daemonize again.
const daemonChildEnv = "AESDSOCKET_DAEMON_CHILD"

// isDaemonChild reports whether this process was launched by daemonize.
func isDaemonChild() bool {
	return os.Getenv(daemonChildEnv) == "1"
}

// daemonize re-execs the current binary as a detached child that inherits
// ln's file descriptor, then exits the parent with status 0 — the Go
// translation of the reference's fork()-after-bind/listen: a real fork()
// inside a running Go process would only duplicate the calling OS thread,
// not the runtime's other threads, so this core uses os/exec re-exec
// (passing the bound socket across exec via ExtraFiles) to get the same
// observable contract spec §4.7 describes: the parent releases its
// resources and exits 0 once the child is launched, and the child runs
// detached (new session, "/" as its working directory, stdio redirected
// to /dev/null).
func daemonize(ln *net.TCPListener) error {
	lnFile, err := listenerFile(ln)
	if err != nil {
		return fmt.Errorf("extracting listener fd: %w", err)
	}
	defer lnFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonChildEnv+"=1")
	cmd.Dir = "/"
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.ExtraFiles = []*os.File{lnFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning daemon child: %w", err)
	}

	return nil
}

// inheritedListener recovers the listening socket a daemonized child was
// handed across re-exec (file descriptor 3, the first ExtraFiles entry).
func inheritedListener() (*net.TCPListener, error) {
	f := os.NewFile(3, "inherited-listener")
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("inherited listener has unexpected type %T", ln)
	}
	return tcpLn, nil
}
