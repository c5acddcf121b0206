// omp-launcher/cli/root.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"omp-launcher/config"
	"omp-launcher/logs"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgFile  string
	logLevel string
	dataDir  string
)

// launcherCfg is filled by the root PersistentPreRunE.
var launcherCfg *config.Launcher

var rootCmd = &cobra.Command{
	Use:   "omp-launcher",
	Short: "open.mp launcher companion",
	Long: `omp-launcher prepares the SA-MP client files the open.mp launcher needs.
It downloads and extracts the client archive, verifies every file against the
reference checksums, keeps the OMP plugin current, and serves the launcher
windows their settings and progress over a local HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadLauncher(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if err := logs.Init(logs.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: os.Stderr,
			File:   cfg.LogFile,
		}); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		launcherCfg = cfg
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("omp-launcher %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to launcher.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the local data dir holding the client files")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. The native log file is closed on every
// exit path, failed commands included.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := logs.Close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "close log file:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
