// omp-launcher/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omp-launcher/api"
	"omp-launcher/logs"
	"omp-launcher/ui"
	"omp-launcher/utils"
)

var serveLogger = logs.L("serve")

var serveNoProvision bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the launcher windows and prepare the client files",
	Long: `Starts the local HTTP and websocket API the launcher windows talk to,
opens the main window in the browser and provisions the client files in the
background. Exits when the main window closes or on Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore()
		if err != nil {
			return err
		}

		hub := api.NewHub()
		go hub.Run(ctx)
		store.Subscribe(hub.SettingsChanged)

		session := newSession()
		prov, err := newProvisioner(session, hub)
		if err != nil {
			return err
		}

		guiReadyChan := make(chan bool)
		go ui.GUIManager(guiReadyChan)
		<-guiReadyChan
		defer ui.CloseGUIManager()

		srv := api.NewServer(api.Deps{
			Store:           store,
			Provisioner:     prov,
			Session:         session,
			Hub:             hub,
			Version:         version,
			SelectDirectory: selectGameDirectory,
			RunContext:      ctx,
		})
		server := &http.Server{
			Addr:    launcherCfg.ListenAddr,
			Handler: srv.Handler(),
		}

		serveErr := make(chan error, 1)
		go func() {
			serveLogger.Info("listening", "addr", "http://"+launcherCfg.ListenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		if !serveNoProvision {
			if _, err := prov.Start(ctx); err != nil {
				serveLogger.Warn("provisioning not started", "error", err)
			}
		}
		if launcherCfg.OpenBrowser {
			time.Sleep(500 * time.Millisecond)
			if err := utils.OpenWindow(launcherCfg.ListenAddr, ""); err != nil {
				serveLogger.Warn("could not open browser", "error", err)
			}
		}

		select {
		case <-srv.Done():
			serveLogger.Info("main window closed, shutting down")
		case <-ctx.Done():
			serveLogger.Info("interrupted, shutting down")
		case err := <-serveErr:
			return fmt.Errorf("http server: %w", err)
		}

		prov.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			serveLogger.Error("server shutdown", "error", err)
		}
		return nil
	},
}

func selectGameDirectory() (string, error) {
	path, err := ui.SelectGameDirectory()
	if errors.Is(err, ui.ErrDialogBusy) {
		return "", api.ErrPickerBusy
	}
	return path, err
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoProvision, "no-provision", false, "serve settings only, do not prepare client files")
	rootCmd.AddCommand(serveCmd)
}
