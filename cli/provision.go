// omp-launcher/cli/provision.go
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"omp-launcher/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Download, extract and verify the client files without a window",
	Long: `Runs one provisioning pass in the terminal: validates the managed client
directory, re-downloads and extracts the archive when anything is missing or
corrupt, and refreshes the OMP plugin. Ctrl-C cancels a download in progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		prov, err := newProvisioner(newSession(), &terminalObserver{})
		if err != nil {
			return err
		}
		info("Data dir: %s", prov.ManagedDir())

		if err := prov.Run(ctx); err != nil {
			return fmt.Errorf("%s (%w)", provision.UserMessage(err), err)
		}
		info("\nClient files are ready.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
