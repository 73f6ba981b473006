package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/config"
	"github.com/ehrlich-b/vtrace/internal/fingerprint"
	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/recorder"
	"github.com/ehrlich-b/vtrace/internal/store"
	"github.com/ehrlich-b/vtrace/internal/trace"
	"github.com/ehrlich-b/vtrace/internal/tracefile"
)

func newCmd(a *app) *cobra.Command {
	var modelFlag string
	var codebaseFlag string
	var outputFlag string
	var contextFlag string
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new recording session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := a.cfg.Patch.Format
			if formatFlag != "" {
				format = formatFlag
			}
			pf, err := patch.ParseFormat(format)
			if err != nil {
				return err
			}
			alg, err := fingerprint.ParseAlgorithm(a.cfg.Hash.Algorithm)
			if err != nil {
				return err
			}

			id := trace.UUIDGenerator{}.NewID()
			var sink recorder.Sink
			var where string
			if a.cfg.Store.Backend == config.BackendSQLite && outputFlag == "" {
				db, err := a.openStore()
				if err != nil {
					return err
				}
				defer db.Close()
				sink = store.Sink{Store: db}
				where = a.cfg.Store.Path
			} else {
				path := outputFlag
				if path == "" {
					path = tracefile.DefaultPath(a.cfg.TraceDir, id)
				}
				sink = &tracefile.Sink{Path: path}
				where = path
			}

			rec, err := recorder.NewSession(cmd.Context(), recorder.Params{
				Model:          modelFlag,
				CodebasePath:   codebaseFlag,
				InitialContext: contextFlag,
				PatchFormat:    pf,
			}, sink, recorder.WithIDGenerator(trace.StaticID(id)), recorder.WithHasher(fingerprint.NewHasher(alg)))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session created: %s\n", rec.Session().ID)
			fmt.Fprintf(out, "Trace file: %s\n", where)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "unknown", "model identifier")
	cmd.Flags().StringVarP(&codebaseFlag, "codebase", "c", "", "codebase directory to fingerprint")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "trace file (default: <trace_dir>/<id>.yaml)")
	cmd.Flags().StringVar(&contextFlag, "context", "", "initial context")
	cmd.Flags().StringVar(&formatFlag, "patch-format", "", "patch format recorded in the session: legacy, positional")

	return cmd
}
