package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagekeeper/internal/config"
	"github.com/vango-dev/pagekeeper/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagekeeper",
		Short: "Tab and keep-alive bookkeeping for single-page apps",
		Long: `Pagekeeper tracks the pages a user has open as tabs and decides
which of them stay mounted in the keep-alive cache.

It runs as an HTTP service with one page registry per client session,
and ships tools for replaying navigation scripts and checking cache keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		replayCmd(),
		keysCmd(),
		initCmd(),
		versionCmd(),
	)
	return cmd
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.New("C122").WithDetail("log.level: " + err.Error())
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, errors.New("C122").WithDetail("log.format: unknown format " + cfg.Format)
	}
	return slog.New(h), nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
