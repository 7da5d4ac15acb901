package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List the runs recorded in the project database, newest first.

Examples:
  crowdsim runs                 # Last 20 runs
  crowdsim runs --limit 0       # All runs
  crowdsim runs show <run-id>   # One run in detail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet. Start one with 'crowdsim run'.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tAGENTS\tBETA\tTICKS\tCONTACTS\tS\tI\tR")
			for _, r := range runs {
				ticks := "-"
				if r.FinishedAt != nil {
					ticks = fmt.Sprintf("%d", r.Summary.Ticks)
				}
				t := r.Summary.Tally
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\t%d\t%d\t%d\t%d\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.AgentCount, r.Beta,
					ticks, r.Summary.TotalContacts, t.Susceptible, t.Infected, t.Recovered)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), run)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  created:    %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  seed:       %d\n", run.Seed)
			fmt.Fprintf(out, "  agents:     %d\n", run.AgentCount)
			fmt.Fprintf(out, "  beta:       %.3f\n", run.Beta)
			fmt.Fprintf(out, "  radius:     %.1f\n", run.ContactRadius)
			fmt.Fprintf(out, "  attractor:  (%.1f, %.1f)\n", run.AttractorX, run.AttractorY)
			if run.FinishedAt == nil {
				fmt.Fprintln(out, "  status:     unfinished")
				return nil
			}
			t := run.Summary.Tally
			fmt.Fprintf(out, "  finished:   %s\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  ticks:      %d (converged: %v)\n", run.Summary.Ticks, run.Summary.Converged)
			fmt.Fprintf(out, "  contacts:   %d\n", run.Summary.TotalContacts)
			fmt.Fprintf(out, "  final:      S=%d I=%d R=%d\n", t.Susceptible, t.Infected, t.Recovered)
			return nil
		},
	}
}
