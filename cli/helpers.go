// omp-launcher/cli/helpers.go
package cli

import (
	"fmt"
	"math"
	"sync"

	"omp-launcher/config"
	"omp-launcher/game"
	"omp-launcher/provision"
	"omp-launcher/updateinfo"
	"omp-launcher/utils"
)

func resolveDataDir() (string, error) {
	dir, err := game.ResolveDataDir(launcherCfg.DataDir)
	if err != nil {
		return "", fmt.Errorf("resolving data dir: %w", err)
	}
	return dir, nil
}

func openStore() (*config.Store, error) {
	path := launcherCfg.SettingsFile
	if path == "" {
		var err error
		if path, err = config.DefaultSettingsPath(); err != nil {
			return nil, err
		}
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening settings %s: %w", path, err)
	}
	return store, nil
}

func newSession() *updateinfo.Session {
	return updateinfo.NewSession(&updateinfo.Client{URL: launcherCfg.UpdateInfoURL})
}

func loadTable() (*provision.Table, error) {
	table, err := provision.LoadTable(launcherCfg.ReferenceTable)
	if err != nil {
		return nil, fmt.Errorf("loading reference table: %w", err)
	}
	return table, nil
}

func newProvisioner(session *updateinfo.Session, observer provision.Observer) (*provision.Provisioner, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	return provision.New(provision.Options{
		DataDir:             dir,
		ArchiveURL:          launcherCfg.ArchiveURL,
		Table:               table,
		Hasher:              provision.FileHasher{Workers: launcherCfg.HashWorkers},
		UpdateInfo:          session,
		Observer:            observer,
		MaxDownloadAttempts: launcherCfg.MaxDownloadAttempts,
		SettleDelay:         launcherCfg.SettleDelay,
		ReadyDelay:          launcherCfg.ReadyDelay,
	})
}

// info prints a line to stdout.
func info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// terminalObserver prints a run to the terminal, one progress line per whole percent.
type terminalObserver struct {
	mu          sync.Mutex
	stage       provision.Stage
	lastPercent int
}

func (o *terminalObserver) StageChanged(stage provision.Stage, task string) {
	o.mu.Lock()
	o.stage = stage
	o.lastPercent = -1
	o.mu.Unlock()
	info("[%s] %s", stage, task)
}

func (o *terminalObserver) TaskChanged(task string) {
	info("  %s", task)
}

func (o *terminalObserver) ProgressChanged(p provision.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.stage.Downloading() || p.BytesReceived == 0 {
		return
	}
	pct := int(math.Floor(p.Percent))
	if pct == o.lastPercent {
		return
	}
	o.lastPercent = pct
	info("  %s", utils.FormatProgress(p.BytesReceived, p.BytesTotal, p.Percent))
}
