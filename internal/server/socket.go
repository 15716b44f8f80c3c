package server

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// bindListener resolves a passive TCP address (AF_UNSPEC-equivalent: one
// dual-stack IPv6 socket that also accepts IPv4 clients), sets
// SO_REUSEADDR, binds to port, and listens with the given backlog,
// mirroring the reference's getaddrinfo(AF_UNSPEC, AI_PASSIVE) + socket +
// setsockopt(SO_REUSEADDR) + bind + listen(BACKLOG) sequence.
//
// Go's net.Listen has no portable way to request a specific listen
// backlog (it always asks the kernel for SOMAXCONN), so this core drops
// to golang.org/x/sys/unix for the raw socket calls where fidelity to the
// reference's BACKLOG constant matters.
func bindListener(port, backlog int) (*net.TCPListener, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	// Accept IPv4 clients on the same dual-stack socket, the rough
	// equivalent of resolving with AF_UNSPEC rather than AF_INET6 only.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
	}

	addr := &unix.SockaddrInet6{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("aesdsocket-listener:%d", port))
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("FileListener: %w", err)
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	return tcpLn, nil
}

// listenerFile extracts the raw *os.File backing ln, for handing the
// listening socket across a daemonizing re-exec via (*exec.Cmd).ExtraFiles.
func listenerFile(ln *net.TCPListener) (*os.File, error) {
	return ln.File()
}
