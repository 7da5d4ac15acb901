package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/store"
)

func newContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts <run-id>",
		Short: "List or export the contacts of a run",
		Long: `List the contacts recorded for a run in resolution order.

With --json, contacts are written as JSON Lines, one object per contact.

Examples:
  crowdsim contacts <run-id>
  crowdsim contacts <run-id> --json > contacts.jsonl
  crowdsim contacts <run-id> --output contacts.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			runID := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if _, err := s.GetRun(ctx, runID); err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}

			switch {
			case output != "":
				n, err := store.ExportContactsFile(ctx, s, runID, output)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d contacts to %s\n", n, output)
				return nil
			case jsonOut:
				_, err := store.ExportContactsJSONL(ctx, s, runID, cmd.OutOrStdout())
				return err
			}

			contacts, err := s.ListContacts(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to list contacts: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTICK\tSOURCE\tTARGET\tCONTAMINATED")
			for _, c := range contacts {
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%v\n", c.Seq, c.Tick, c.Source, c.Target, c.Contaminated)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d contacts\n", len(contacts))
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write contacts as JSONL to this file")
	return cmd
}
