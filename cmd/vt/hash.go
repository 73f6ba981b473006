package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/fingerprint"
	"github.com/ehrlich-b/vtrace/internal/logger"
	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/replay"
)

func (a *app) hasher(override string) (fingerprint.Hasher, error) {
	name := a.cfg.Hash.Algorithm
	if override != "" {
		name = override
	}
	alg, err := fingerprint.ParseAlgorithm(name)
	if err != nil {
		return fingerprint.Hasher{}, err
	}
	return fingerprint.NewHasher(alg), nil
}

func hashCmd(a *app) *cobra.Command {
	var algFlag string

	cmd := &cobra.Command{
		Use:   "hash <path>",
		Short: "Print the content address of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hasher(algFlag)
			if err != nil {
				return err
			}
			digest, err := hashPath(cmd.Context(), h, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&algFlag, "algorithm", "", "sha256 or blake2b (default from config)")

	return cmd
}

func hashPath(ctx context.Context, h fingerprint.Hasher, p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return h.Directory(ctx, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return h.Content(data), nil
}

func verifyCmd(a *app) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "verify <trace> <dir>",
		Short: "Replay a session and compare the result with a real directory",
		Long: "Replays the trace in memory and reports every file that is missing from, differs in, " +
			"or is extra in <dir>. Exits non-zero on drift.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load(args[0])
			if err != nil {
				return err
			}
			h, err := a.hasher("")
			if err != nil {
				return err
			}

			opts := []replay.Option{replay.WithFileSystem(replay.NewMemFS()), replay.WithLogger(logger.Log)}
			if formatFlag != "" {
				f, err := patch.ParseFormat(formatFlag)
				if err != nil {
					return err
				}
				opts = append(opts, replay.WithPatchFormat(f))
			}
			st, err := replay.Replay(cmd.Context(), s, opts...)
			if err != nil {
				return err
			}

			expected := h.ManifestFromFiles(st.Files)
			actual, err := h.BuildManifest(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			drift := fingerprint.DiffManifests(expected, actual)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "replayed: %s\n", expected.Digest())
			fmt.Fprintf(out, "on disk:  %s\n", actual.Digest())
			if len(drift) == 0 {
				fmt.Fprintln(out, "Workspace matches the trace.")
				return nil
			}
			for _, d := range drift {
				fmt.Fprintf(out, "  %-8s %s\n", d.Op, d.Path)
			}
			return fmt.Errorf("%d files drifted from the trace", len(drift))
		},
	}

	cmd.Flags().StringVar(&formatFlag, "patch-format", "", "override the session's patch format")

	return cmd
}
