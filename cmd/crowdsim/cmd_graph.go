package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/store"
	"github.com/nvandessel/crowdsim/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <run-id>",
		Short: "Render the contact graph of a run",
		Long: `Output the contact graph of a recorded run in DOT (Graphviz) or JSON
format. Nodes are agents coloured by initial state; edges are contacts,
bold red where the contact contaminated its target.

Examples:
  crowdsim graph <run-id> | dot -Tsvg > contacts.svg
  crowdsim graph <run-id> --format json -o contacts.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var buf bytes.Buffer
			if err := renderGraph(cmd.Context(), &buf, s, args[0], visualization.Format(format)); err != nil {
				return err
			}

			if output == "" {
				_, err := buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("write graph file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().String("format", string(visualization.FormatDOT), "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Output file path (default stdout)")
	return cmd
}

func renderGraph(ctx context.Context, w io.Writer, s store.Store, runID string, format visualization.Format) error {
	switch format {
	case visualization.FormatDOT:
		dot, err := visualization.RenderDOT(ctx, s, runID)
		if err != nil {
			return fmt.Errorf("render DOT: %w", err)
		}
		_, err = io.WriteString(w, dot)
		return err

	case visualization.FormatJSON:
		result, err := visualization.RenderJSON(ctx, s, runID)
		if err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if err := writeJSON(w, result); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
	}
}
