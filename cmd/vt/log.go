package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/vtrace/internal/recorder"
	"github.com/ehrlich-b/vtrace/internal/trace"
)

func logCmd(a *app) *cobra.Command {
	var inputFlag string
	var dataFlag string
	var toolFlag string
	var argFlags []string
	var metaFlags []string
	var tempFlag float64

	cmd := &cobra.Command{
		Use:   "log <trace> llm|tool|edit",
		Short: "Append an event to a session",
		Long: "Append an event to a session. Values not given as flags are prompted for on a terminal; " +
			"the output (--data) can also be piped on stdin.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"llm", "tool", "edit"},
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata(metaFlags)
			if err != nil {
				return err
			}

			h, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer h.Close()
			rec := recorder.New(h.session, h.sink)
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			switch args[1] {
			case "llm":
				prompt, err := p.line("Prompt", inputFlag, "input")
				if err != nil {
					return err
				}
				resp, err := p.body("Response", dataFlag, "data")
				if err != nil {
					return err
				}
				if _, err := rec.LogLLMCall(prompt, resp, tempFlag, md); err != nil {
					return err
				}
			case "tool":
				tool, err := p.line("Tool name", toolFlag, "tool")
				if err != nil {
					return err
				}
				var targs trace.ToolArgs
				if len(argFlags) > 0 {
					named, err := parseMetadata(argFlags)
					if err != nil {
						return err
					}
					targs = trace.NamedArgs(named)
				} else {
					text, err := p.line("Args", inputFlag, "input")
					if err != nil {
						return err
					}
					targs = trace.TextArgs(text)
				}
				out, err := p.body("Output", dataFlag, "data")
				if err != nil {
					return err
				}
				if _, err := rec.LogToolCall(tool, targs, out, md); err != nil {
					return err
				}
			case "edit":
				path, err := p.line("File path", inputFlag, "input")
				if err != nil {
					return err
				}
				diff, err := p.raw("Diff", dataFlag, "data")
				if err != nil {
					return err
				}
				if _, err := rec.LogEdit(path, diff, md); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown event type %q: use llm, tool or edit", args[1])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Event logged. Total events: %d\n", rec.EventCount())
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "prompt, tool args text, or file path")
	cmd.Flags().StringVarP(&dataFlag, "data", "d", "", "response, tool output, or diff")
	cmd.Flags().StringVar(&toolFlag, "tool", "", "tool name (tool events)")
	cmd.Flags().StringArrayVar(&argFlags, "arg", nil, "named tool argument key=value (repeatable)")
	cmd.Flags().StringArrayVar(&metaFlags, "meta", nil, "metadata key=value (repeatable)")
	cmd.Flags().Float64Var(&tempFlag, "temperature", 0, "sampling temperature (llm events)")

	return cmd
}

// parseMetadata turns key=value pairs into metadata. Values that parse as
// an integer, float, bool or "null" keep that type; anything else is a
// string.
func parseMetadata(pairs []string) (trace.Metadata, error) {
	var md trace.Metadata
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return md, fmt.Errorf("invalid key=value %q", kv)
		}
		md.Set(k, parseScalar(v))
	}
	return md, nil
}

func parseScalar(s string) trace.Value {
	if s == "null" {
		return trace.Null()
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return trace.Bool(b)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return trace.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		return trace.Float(f)
	}
	return trace.String(s)
}
