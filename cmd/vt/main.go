package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/config"
	"github.com/ehrlich-b/vtrace/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once config is loaded.
type app struct {
	cfg  *config.Config
	root string

	logLevel string
	backend  string

	logFile io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "vt",
		Short:         "vtrace: reproducible traces for AI-assisted coding",
		Long:          "Records every non-deterministic output of an agent run and replays it into an identical workspace.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.backend, "store", "", "trace backend: yaml or sqlite (default from config)")

	root.AddCommand(
		newCmd(a),
		logCmd(a),
		replayCmd(a),
		showCmd(a),
		listCmd(a),
		diffCmd(a),
		bisectCmd(a),
		hashCmd(a),
		verifyCmd(a),
		compactCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, root, err := config.LoadProject()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	closer, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logFile = closer
	a.cfg, a.root = cfg, root
	logger.Debug("config loaded", "root", root, "backend", cfg.Store.Backend, "trace_dir", cfg.TraceDir)
	return nil
}

// close releases the log file opened by setup. It is safe to call twice.
func (a *app) close() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}
