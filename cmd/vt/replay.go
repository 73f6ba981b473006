package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/logger"
	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/replay"
	"github.com/ehrlich-b/vtrace/internal/trace"
)

func replayCmd(a *app) *cobra.Command {
	var workspaceFlag string
	var toFlag int
	var stepFlag bool
	var watchFlag bool
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay a session into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []replay.Option
			opts = append(opts, replay.WithLogger(logger.Log))
			if workspaceFlag != "" {
				opts = append(opts, replay.WithWorkspace(workspaceFlag))
			}
			if formatFlag != "" {
				f, err := patch.ParseFormat(formatFlag)
				if err != nil {
					return err
				}
				opts = append(opts, replay.WithPatchFormat(f))
			}
			out := cmd.OutOrStdout()

			if stepFlag {
				s, err := a.load(args[0])
				if err != nil {
					return err
				}
				return stepReplay(cmd.Context(), s, newPrompter(cmd.InOrStdin(), out), opts)
			}

			run := func() error {
				s, err := a.load(args[0])
				if err != nil {
					return err
				}
				return replayOnce(cmd.Context(), out, s, toFlag, workspaceFlag != "", opts)
			}
			if !watchFlag {
				return run()
			}

			h, err := a.open(args[0])
			if err != nil {
				return err
			}
			h.Close()
			if h.path == "" {
				return fmt.Errorf("--watch needs a trace file, %s is stored in sqlite", h.session.ID)
			}
			if err := run(); err != nil {
				return err
			}
			return watchTrace(cmd.Context(), h.path, func() {
				fmt.Fprintf(out, "\n%s changed, replaying\n", h.path)
				if err := run(); err != nil {
					logger.Error("replay failed", "trace", h.path, "err", err)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceFlag, "workspace", "w", "", "directory to materialize files in (default: temp dir, removed afterwards)")
	cmd.Flags().IntVar(&toFlag, "to", -1, "stop after this many events")
	cmd.Flags().BoolVarP(&stepFlag, "step", "s", false, "step through events interactively")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "replay again whenever the trace file changes")
	cmd.Flags().StringVar(&formatFlag, "patch-format", "", "override the session's patch format: legacy, positional")

	return cmd
}

func replayOnce(ctx context.Context, out io.Writer, s *trace.Session, to int, keep bool, opts []replay.Option) error {
	r, err := replay.New(s, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	var st *replay.State
	if to >= 0 {
		st, err = r.ReplayTo(ctx, to)
	} else {
		st, err = r.ReplayAll(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Replayed %d of %d events\n", st.Cursor, s.Len())
	fmt.Fprintf(out, "Files in workspace: [%s]\n", strings.Join(st.Paths(), ", "))
	fmt.Fprintf(out, "LLM outputs: %d, tool outputs: %d\n", len(st.LLMOutputs), len(st.ToolOutputs))
	for _, w := range st.Warnings {
		fmt.Fprintf(out, "warning: event %d: %s: %s\n", w.Index, w.Path, w.Warning)
	}
	if keep {
		fmt.Fprintf(out, "\nFiles written to: %s\n", st.Workspace)
	}
	return nil
}

func stepReplay(ctx context.Context, s *trace.Session, p *prompter, opts []replay.Option) error {
	r, err := replay.New(s, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	for ctx.Err() == nil {
		e, ok, err := r.Step()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(p.out, "End of trace.")
			return nil
		}
		fmt.Fprintf(p.out, "[%d] %s\n", r.State().Cursor-1, e.Kind())
		fmt.Fprintf(p.out, "  Input: %s\n", clip(inputText(e.Input), 60))
		fmt.Fprintf(p.out, "  Output: %s\n", clip(e.Output, 60))
		if !p.confirm("Continue?") {
			return nil
		}
	}
	return ctx.Err()
}

// watchTrace calls onChange after every write to path until ctx is done.
// The directory is watched because saves replace the file by rename.
func watchTrace(ctx context.Context, path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Info("watching trace", "path", path)

	target := filepath.Clean(path)
	// Saves arrive as bursts of events; fire once they settle.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				debounce.Reset(100 * time.Millisecond)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		case <-debounce.C:
			onChange()
		}
	}
}

func inputText(in trace.Input) string {
	switch v := in.(type) {
	case trace.Prompt:
		return string(v)
	case trace.FilePath:
		return string(v)
	case trace.ToolInvocation:
		if v.Args.IsNamed {
			data, _ := v.Args.Named.MarshalJSON()
			return v.Tool + " " + string(data)
		}
		return v.Tool + " " + v.Args.Text
	}
	return ""
}

// clip shortens s to n runes on one line.
func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
