// Command aesdsocket runs the newline-framed, append-and-replay TCP line
// server described by aesdsocket.c: every complete line a client sends is
// appended to a shared log, and the entire log is replayed back to that
// client after each append. A background ticker interleaves a timestamp
// line into the same log every --tick-interval.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aesdsocket/aesdsocket/internal/config"
	"github.com/aesdsocket/aesdsocket/internal/diagnostics"
	"github.com/aesdsocket/aesdsocket/internal/server"
)

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var tickSeconds int

	root := &cobra.Command{
		Use:   "aesdsocket",
		Short: "Newline-framed append-and-replay TCP line server",
		Long: "aesdsocket listens on a TCP port, appends every newline-terminated " +
			"line a client sends to a shared log, and replays the entire log " +
			"back to that client after each append. A background ticker writes " +
			"a timestamp line into the log every --tick-interval.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.TickInterval = time.Duration(tickSeconds) * time.Second

			diag := diagnostics.New()
			log.SetOutput(io.MultiWriter(os.Stderr, diag))

			sup := server.New(cfg, diag)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			return sup.Run(ctx)
		},
	}

	root.Flags().IntVar(&cfg.Port, "port", config.DefaultPort, "TCP port to listen on")
	root.Flags().StringVar(&cfg.LogPath, "log-path", config.DefaultLogPath, "path to the shared append-and-replay log file")
	root.Flags().IntVar(&tickSeconds, "tick-interval", int(config.DefaultTickInterval/time.Second), "seconds between timestamp lines")
	root.Flags().IntVar(&cfg.Backlog, "backlog", config.DefaultBacklog, "listen backlog")
	root.Flags().BoolVarP(&cfg.Daemonize, "daemon", "d", false, "daemonize after bind/listen succeed")

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
