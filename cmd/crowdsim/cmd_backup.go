package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/backup"
	"github.com/nvandessel/crowdsim/internal/constants"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [run-id...]",
		Short: "Archive recorded runs to a backup file",
		Long: `Archive runs with their agents and contacts to a gzip-compressed file.
Without run IDs every run is archived.

Default location: ~/.crowdsim/backups/crowdsim-backup-YYYYMMDD-HHMMSS.mmm.json.gz
Older backups in the same directory are pruned (default: keep the last 10).

Examples:
  crowdsim backup                           # All runs, default location
  crowdsim backup <run-id> --output run.json.gz
  crowdsim backup --keep 5 --max-age 30d
  crowdsim backup list                      # List backups
  crowdsim backup verify <file>             # Verify backup integrity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if outputPath == "" {
				dir, err := backup.DefaultBackupDir()
				if err != nil {
					return fmt.Errorf("failed to get backup directory: %w", err)
				}
				outputPath = backup.GenerateBackupPath(dir)
			}

			policy, err := retentionPolicy(cmd)
			if err != nil {
				return err
			}

			s, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			archive, err := backup.Backup(cmd.Context(), s, outputPath, args...)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			deleted, err := backup.ApplyRetention(filepath.Dir(outputPath), policy)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			var sizeBytes int64
			if info, err := os.Stat(outputPath); err == nil {
				sizeBytes = info.Size()
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"path":          outputPath,
					"run_count":     len(archive.Runs),
					"contact_count": archive.ContactCount(),
					"size_bytes":    sizeBytes,
					"pruned":        len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d runs, %d contacts (%d bytes)\n",
				len(archive.Runs), archive.ContactCount(), sizeBytes)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old backups\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file path (default: auto-generated in ~/.crowdsim/backups/)")
	cmd.Flags().Int("keep", constants.DefaultBackupRetention, "Number of backups to keep in the output directory (0 keeps all)")
	cmd.Flags().String("max-age", "", "Also keep backups younger than this (e.g. 30d, 2w, 72h)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)
	return cmd
}

// retentionPolicy builds the policy from --keep and --max-age. A backup
// survives when either rule keeps it.
func retentionPolicy(cmd *cobra.Command) (backup.RetentionPolicy, error) {
	keep, _ := cmd.Flags().GetInt("keep")
	maxAge, _ := cmd.Flags().GetString("max-age")

	if keep <= 0 {
		return backup.AnyPolicy{keepAll{}}, nil
	}
	policy := backup.AnyPolicy{&backup.CountPolicy{MaxCount: keep}}
	if maxAge != "" {
		d, err := backup.ParseDuration(maxAge)
		if err != nil {
			return nil, fmt.Errorf("--max-age: %w", err)
		}
		policy = append(policy, &backup.AgePolicy{MaxAge: d})
	}
	return policy, nil
}

type keepAll struct{}

func (keepAll) Apply(b []backup.BackupInfo) []backup.BackupInfo { return b }

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in the default backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return fmt.Errorf("failed to get backup directory: %w", err)
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"backups":     backups,
					"total_count": len(backups),
					"directory":   dir,
				})
			}
			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backups in %s:\n", dir)
			var total int64
			for _, b := range backups {
				total += b.Size
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s  %4d runs  %8d bytes\n",
					filepath.Base(b.Path), b.CreatedAt.Local().Format("2006-01-02 15:04"), b.Runs, b.Size)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d backups, %d bytes\n", len(backups), total)
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the checksum of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			header, err := backup.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("failed to read backup header: %w", err)
			}
			verr := backup.VerifyChecksum(path)

			if jsonOut {
				result := map[string]interface{}{
					"path":          path,
					"valid":         verr == nil,
					"version":       header.Version,
					"run_count":     header.RunCount,
					"contact_count": header.ContactCount,
					"checksum":      header.Checksum,
				}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("backup %s is corrupt: %w", path, verr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup OK: version %d, %d runs, %d contacts\n",
				header.Version, header.RunCount, header.ContactCount)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Import runs from a backup file",
		Long: `Import the runs of a backup file into the project database. Runs whose
ID already exists are skipped.`,
		Args: cobra.ExactArgs(1),
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

			result, err := backup.Restore(cmd.Context(), s, args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d runs (%d skipped), %d agents, %d contacts\n",
				result.RunsRestored, result.RunsSkipped, result.UsersRestored, result.ContactsRestored)
			return nil
		},
	}
}
