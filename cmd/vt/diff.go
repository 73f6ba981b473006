package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/logger"
	"github.com/ehrlich-b/vtrace/internal/replay"
)

const maxShownMismatches = 10

func diffCmd(a *app) *cobra.Command {
	var lengthFlag bool

	cmd := &cobra.Command{
		Use:   "diff <trace1> <trace2>",
		Short: "Compare two sessions event by event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s1, err := a.load(args[0])
			if err != nil {
				return err
			}
			s2, err := a.load(args[1])
			if err != nil {
				return err
			}

			var opts []replay.CompareOption
			if lengthFlag {
				opts = append(opts, replay.WithLengthMismatch())
			}
			c := replay.Compare(s1, s2, opts...)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Event counts: %d vs %d\n", c.EventCounts[0], c.EventCounts[1])
			fmt.Fprintf(out, "Model match: %v\n", c.ModelMatch)
			if len(c.Mismatches) == 0 {
				fmt.Fprintln(out, "\nTraces are identical.")
				return nil
			}
			fmt.Fprintf(out, "\nDifferences found: %d\n", len(c.Mismatches))
			for i, m := range c.Mismatches {
				if i == maxShownMismatches {
					fmt.Fprintf(out, "  ... %d more\n", len(c.Mismatches)-maxShownMismatches)
					break
				}
				fmt.Fprintf(out, "  [%d] %s (%s)\n", m.Index, m.Type, kindPair(m))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lengthFlag, "length", false, "also report a length_mismatch when one trace is longer")

	return cmd
}

func kindPair(m replay.Mismatch) string {
	names := make([]string, 2)
	for i, k := range m.Kinds {
		names[i] = string(k)
		if k == "" {
			names[i] = "-"
		}
	}
	if m.Type == replay.OutputMismatch {
		return names[0]
	}
	return strings.Join(names, " vs ")
}

func bisectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bisect <trace1> <trace2>",
		Short: "Find the first event after which two replays produce different files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s1, err := a.load(args[0])
			if err != nil {
				return err
			}
			s2, err := a.load(args[1])
			if err != nil {
				return err
			}
			d, err := replay.FirstDivergence(cmd.Context(), s1, s2, replay.WithLogger(logger.Log))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !d.Found {
				fmt.Fprintln(out, "Replays produce identical files.")
				return nil
			}
			fmt.Fprintf(out, "Files diverge after event %d (cursor %d)\n", d.Index, d.Cursor)
			for _, p := range d.Paths {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
}
