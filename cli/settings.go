// omp-launcher/cli/settings.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"omp-launcher/config"
	"omp-launcher/game"
)

var detectSave bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the persisted launcher settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(store.Get())
	},
}

func settingCommand(use, short string, apply func(*config.Store, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := apply(store, args[0]); err != nil {
				return err
			}
			info("Saved to %s", store.Path())
			return nil
		},
	}
}

var settingsDetectGameCmd = &cobra.Command{
	Use:   "detect-game",
	Short: "Find the GTA San Andreas installation from the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := game.DetectGamePath()
		if err != nil {
			return err
		}
		info("Found GTA San Andreas at %s", path)
		if !detectSave {
			return nil
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.SetGamePath(path); err != nil {
			return err
		}
		info("Saved to %s", store.Path())
		return nil
	},
}

func init() {
	settingsDetectGameCmd.Flags().BoolVar(&detectSave, "save", false, "store the detected path as the game path")

	settingsCmd.AddCommand(
		settingsShowCmd,
		settingCommand("set-nickname <name>", "Set the in-game nickname", func(s *config.Store, v string) error {
			return s.SetNickName(v)
		}),
		settingCommand("set-game-path <dir>", "Set the GTA San Andreas installation folder", func(s *config.Store, v string) error {
			if err := game.ValidateGamePath(v); err != nil {
				return err
			}
			return s.SetGamePath(v)
		}),
		settingCommand("set-samp-version <version>", fmt.Sprintf("Select the client DLL variant %v", config.SampVersions), func(s *config.Store, v string) error {
			return s.SetSampVersion(config.SampVersion(v))
		}),
		settingCommand("set-language <code>", "Set the interface language", func(s *config.Store, v string) error {
			return s.SetLanguage(v)
		}),
		settingsDetectGameCmd,
	)
	rootCmd.AddCommand(settingsCmd)
}
