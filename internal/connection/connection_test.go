package connection

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aesdsocket/aesdsocket/internal/sharedlog"
)

func newTestLog(t *testing.T) *sharedlog.Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	l, err := sharedlog.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func waitDone(t *testing.T, done <-chan string, wantID string) {
	t.Helper()
	select {
	case id := <-done:
		require.Equal(t, wantID, id)
	case <-time.After(time.Second):
		t.Fatal("worker did not report completion in time")
	}
}

func TestWorkerEchoesFullLogAfterEachLine(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	l := newTestLog(t)
	w := NewWorker(NewState(serverConn), l)

	stop := make(chan struct{})
	done := make(chan string, 1)
	go w.Run(stop, done)

	_, err := clientConn.Write([]byte("hello\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "hello\n", line)

	_, err = clientConn.Write([]byte("world\n"))
	require.NoError(t, err)

	line1, err := reader.ReadString('\n')
	require.NoError(t, err)
	line2, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "hello\n", line1)
	require.Equal(t, "world\n", line2)

	clientConn.Close()
	waitDone(t, done, w.state.ID)
}

func TestWorkerCarriesOverPartialLineAcrossReads(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	l := newTestLog(t)
	w := NewWorker(NewState(serverConn), l)

	stop := make(chan struct{})
	done := make(chan string, 1)
	go w.Run(stop, done)

	_, err := clientConn.Write([]byte("par"))
	require.NoError(t, err)
	_, err = clientConn.Write([]byte("tial\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "partial\n", line)

	clientConn.Close()
	waitDone(t, done, w.state.ID)
}

func TestWorkerStopsOnShutdownSignal(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	l := newTestLog(t)
	w := NewWorker(NewState(serverConn), l)

	stop := make(chan struct{})
	done := make(chan string, 1)
	close(stop)
	go w.Run(stop, done)

	waitDone(t, done, w.state.ID)
}

func TestConcurrentWorkersAppendToSharedLogWithoutInterleaving(t *testing.T) {
	l := newTestLog(t)
	const workers = 5

	stop := make(chan struct{})
	done := make(chan string, workers)

	clients := make([]net.Conn, 0, workers)
	for i := 0; i < workers; i++ {
		serverConn, clientConn := net.Pipe()
		clients = append(clients, clientConn)
		w := NewWorker(NewState(serverConn), l)
		go w.Run(stop, done)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	for i, c := range clients {
		_, err := c.Write([]byte{byte('a' + i), '\n'})
		require.NoError(t, err)
		reader := bufio.NewReader(c)
		for j := 0; j <= i; j++ {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			require.Equal(t, string([]byte{byte('a' + j), '\n'}), line)
		}
	}
}
