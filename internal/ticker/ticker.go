// Package ticker implements the periodic producer that composes a
// formatted timestamp line and appends it through a sharedlog.Log every
// T seconds.
//
// Ground: internal/agent/agent.go's heartbeatLoop (time.NewTicker,
// select on ctx.Done()/ticker.C), repurposed from sending a cluster
// heartbeat to writing a timestamp line; the format string and interval
// are taken from aesdsocket.c's write_timestamp (strftime with
// "%a, %d %b %Y %T %z%n" every TIMESTAMP_INTERVAL_S seconds).
package ticker

import (
	"log"
	"time"

	"github.com/aesdsocket/aesdsocket/internal/sharedlog"
)

// DefaultInterval matches TIMESTAMP_INTERVAL_S in the reference.
const DefaultInterval = 10 * time.Second

// timestampLayout renders the same fields as the C strftime format
// "%a, %d %b %Y %T %z": short weekday, day, short month, year,
// HH:MM:SS, numeric zone offset.
const timestampLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Ticker periodically appends "timestamp:<date>\n" to a SharedLog. It
// never replays; it is a producer only, per §4.6.
type Ticker struct {
	log      *sharedlog.Log
	interval time.Duration
}

// New constructs a Ticker bound to log, firing every interval (0 selects
// DefaultInterval).
func New(log *sharedlog.Log, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{log: log, interval: interval}
}

// Run blocks, appending a timestamp line every interval until stop is
// closed. The first line is written one interval after Run starts. Tick drift is acceptable; a tick missed during
// shutdown is never retried, per §4.6.
func (t *Ticker) Run(stop <-chan struct{}) {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-tk.C:
			t.emit(now)
		}
	}
}

func (t *Ticker) emit(now time.Time) {
	line := "timestamp:" + now.Local().Format(timestampLayout) + "\n"
	if err := t.log.Append([]byte(line)); err != nil {
		log.Printf("[ticker] error writing data to file: %v", err)
	}
}
