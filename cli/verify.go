// omp-launcher/cli/verify.go
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"omp-launcher/provision"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the client files against the reference checksums",
	Long: `Hashes every file under the managed client directory and compares it with
the reference table. Does NOT download or modify anything. Exit 0 if every
resource matches; exit non-zero otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDataDir()
		if err != nil {
			return err
		}
		table, err := loadTable()
		if err != nil {
			return err
		}

		managed := filepath.Join(dir, table.ManagedDir)
		if _, err := os.Stat(managed); err != nil {
			return fmt.Errorf("managed directory %s: %w", managed, err)
		}
		files, err := provision.CollectFiles(managed)
		if err != nil {
			return err
		}
		records, err := provision.FileHasher{Workers: launcherCfg.HashWorkers}.Checksums(cmd.Context(), files)
		if err != nil {
			return err
		}

		failed := map[string]provision.Mismatch{}
		for _, m := range provision.Mismatches(records, table) {
			failed[m.Resource.ID()] = m
		}
		for _, res := range table.Resources {
			label := res.Display
			if label == "" {
				label = res.ID()
			}
			m, bad := failed[res.ID()]
			switch {
			case !bad:
				info("  ✓ %-28s  %s", label, res.RelPath())
			case m.Missing:
				info("  ✗ %-28s  missing", label)
			default:
				info("  ✗ %-28s  %s → %s", label, res.Checksum, m.Actual)
			}
		}

		if len(failed) > 0 {
			return fmt.Errorf("%w: %d of %d resource(s) failed validation", provision.ErrChecksumMismatch, len(failed), table.Len())
		}
		info("\nAll %d resources match.", table.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
