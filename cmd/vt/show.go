package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/config"
	"github.com/ehrlich-b/vtrace/internal/trace"
	"github.com/ehrlich-b/vtrace/internal/tracefile"
)

func showCmd(a *app) *cobra.Command {
	var eventsFlag bool
	var verboseFlag bool
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "show <trace>",
		Short: "Show session contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if jsonFlag {
				data, err := trace.MarshalJSON(s)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Session ID: %s\n", s.ID)
			fmt.Fprintf(out, "Model: %s\n", s.Model)
			fmt.Fprintf(out, "Codebase hash: %s\n", s.CodebaseHash)
			fmt.Fprintf(out, "Created: %s\n", s.CreatedAt)
			fmt.Fprintf(out, "Schema: v%d, patch format %s\n", s.Version(), patchFormatName(s))
			fmt.Fprintf(out, "Events: %d\n", s.Len())
			fmt.Fprintln(out)

			if eventsFlag || verboseFlag {
				for i, e := range s.Events() {
					fmt.Fprintf(out, "[%d] %s @ %s\n", i, e.Kind(), e.Timestamp)
					if verboseFlag {
						fmt.Fprintf(out, "    Input: %s\n", inputText(e.Input))
						fmt.Fprintf(out, "    Output: %s\n", clip(e.Output, 200))
						if e.Metadata.Len() > 0 {
							data, _ := e.Metadata.MarshalJSON()
							fmt.Fprintf(out, "    Metadata: %s\n", data)
						}
						fmt.Fprintln(out)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&eventsFlag, "events", "e", false, "list events")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "show full event details")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the session as JSON")

	return cmd
}

func patchFormatName(s *trace.Session) string {
	if s.PatchFormat == "" {
		return "legacy"
	}
	return s.PatchFormat
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.cfg.Store.Backend == config.BackendSQLite {
				db, err := a.openStore()
				if err != nil {
					return err
				}
				defer db.Close()
				sessions, err := db.ListSessions()
				if err != nil {
					return err
				}
				for _, info := range sessions {
					fmt.Fprintf(out, "%-10s %-26s %-20s %d events\n", info.ID, info.CreatedAt, info.Model, info.Events)
				}
				return nil
			}

			paths, err := tracefile.List(a.cfg.TraceDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				s, err := tracefile.Load(p)
				if err != nil {
					fmt.Fprintf(out, "%-10s unreadable: %v\n", strings.TrimSuffix(filepath.Base(p), tracefile.Ext), err)
					continue
				}
				fmt.Fprintf(out, "%-10s %-26s %-20s %d events\n", s.ID, s.CreatedAt, s.Model, s.Len())
			}
			return nil
		},
	}
}
