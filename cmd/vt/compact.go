package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/tracefile"
)

func compactCmd(a *app) *cobra.Command {
	var outputFlag string
	var pruneFlag bool

	cmd := &cobra.Command{
		Use:   "compact <session-id>",
		Short: "Export a session from the sqlite event log as a YAML trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := db.LoadSession(args[0])
			if err != nil {
				return err
			}
			path := outputFlag
			if path == "" {
				path = tracefile.DefaultPath(a.cfg.TraceDir, s.ID)
			}
			if err := tracefile.Save(path, s); err != nil {
				return err
			}

			// Read the snapshot back before dropping the rows it came from.
			saved, err := tracefile.Load(path)
			if err != nil {
				return fmt.Errorf("verify snapshot: %w", err)
			}
			if !saved.Equal(s) {
				return fmt.Errorf("snapshot %s does not match session %s", path, s.ID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %d events to %s\n", s.Len(), path)
			if pruneFlag {
				if err := db.DeleteSession(s.ID); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s from %s\n", s.ID, a.cfg.Store.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "trace file (default: <trace_dir>/<id>.yaml)")
	cmd.Flags().BoolVar(&pruneFlag, "prune", false, "delete the session from the event log after export")

	return cmd
}
