// omp-launcher/provision/provisioner.go
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"omp-launcher/logs"
	"omp-launcher/updateinfo"
	"omp-launcher/utils"
)

var logger = logs.L("provision")

const (
	PluginDirName  = "omp"
	PluginFileName = "omp-client.dll"

	DefaultMaxDownloadAttempts = 3
	DefaultSettleDelay         = 500 * time.Millisecond
	DefaultReadyDelay          = time.Second

	// readyDelayAfterDownload is used when the run already kept the user waiting.
	readyDelayAfterDownload = time.Millisecond
)

// Downloader streams a remote file to dest.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress utils.ProgressFunc) error
}

// UpdateInfoSource supplies the plugin checksum and download link, fetched
// at most once per session.
type UpdateInfoSource interface {
	Get(ctx context.Context) (updateinfo.Info, error)
}

type Options struct {
	DataDir    string
	ArchiveURL string
	Table      *Table

	Downloader Downloader
	Extractor  Extractor
	Hasher     Hasher
	UpdateInfo UpdateInfoSource
	Observer   Observer

	MaxDownloadAttempts int
	SettleDelay         time.Duration
	ReadyDelay          time.Duration
}

// Status is a snapshot of the provisioner for status endpoints.
type Status struct {
	RunID    string   `json:"runId,omitempty"`
	Running  bool     `json:"running"`
	Stage    Stage    `json:"stage"`
	Task     string   `json:"task"`
	Progress Progress `json:"progress"`
	Error    string   `json:"error,omitempty"`
}

// Provisioner prepares the managed client tree. Only one Run may be in flight.
type Provisioner struct {
	opts     Options
	running  atomic.Bool
	progress progressTracker

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

func New(opts Options) (*Provisioner, error) {
	if opts.DataDir == "" {
		return nil, errors.New("provision: data dir is required")
	}
	if opts.ArchiveURL == "" {
		return nil, errors.New("provision: archive URL is required")
	}
	if opts.Table == nil {
		t, err := DefaultTable()
		if err != nil {
			return nil, err
		}
		opts.Table = t
	}
	if opts.Downloader == nil {
		opts.Downloader = utils.NewFileDownloader()
	}
	if opts.Extractor == nil {
		opts.Extractor = SevenZipExtractor{}
	}
	if opts.Hasher == nil {
		opts.Hasher = FileHasher{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.MaxDownloadAttempts < 1 {
		opts.MaxDownloadAttempts = DefaultMaxDownloadAttempts
	}
	return &Provisioner{
		opts:   opts,
		status: Status{Stage: Initializing, Task: "Getting ready to launch..."},
	}, nil
}

func (p *Provisioner) ManagedDir() string {
	return filepath.Join(p.opts.DataDir, p.opts.Table.ManagedDir)
}

func (p *Provisioner) ArchivePath() string {
	return filepath.Join(p.ManagedDir(), p.opts.Table.Archive)
}

func (p *Provisioner) PluginPath() string {
	return filepath.Join(p.opts.DataDir, PluginDirName, PluginFileName)
}

func (p *Provisioner) Table() *Table { return p.opts.Table }

func (p *Provisioner) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Running = p.running.Load()
	s.Progress = p.progress.snapshot()
	return s
}

// Cancel aborts the download in flight, if any. Extraction and hashing run to completion.
func (p *Provisioner) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	p.cancel()
	return true
}

// Run executes one provisioning attempt and returns once Complete or Failed is reached.
func (p *Provisioner) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return p.runOnce(ctx, p.begin())
}

// Start launches a run in the background. The channel receives Run's result.
// Status carries the new run's id once Start returns.
func (p *Provisioner) Start(ctx context.Context) (<-chan error, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	r := p.begin()
	done := make(chan error, 1)
	go func() { done <- p.runOnce(ctx, r) }()
	return done, nil
}

const initTask = "Getting ready to launch..."

// begin resets the status for a new run. The caller holds the running flag.
func (p *Provisioner) begin() *run {
	id := uuid.NewString()
	r := &run{p: p, id: id, log: logger.With("run", id)}

	p.mu.Lock()
	p.status = Status{RunID: r.id, Stage: Initializing, Task: initTask}
	p.mu.Unlock()
	p.progress.reset()
	return r
}

func (p *Provisioner) runOnce(ctx context.Context, r *run) error {
	defer p.running.Store(false)

	p.opts.Observer.StageChanged(Initializing, initTask)
	r.log.Info("provisioning started", "data_dir", p.opts.DataDir)

	if err := r.execute(ctx); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

func (p *Provisioner) setStage(stage Stage, task string) {
	p.mu.Lock()
	changed := p.status.Stage != stage
	p.status.Stage = stage
	p.status.Task = task
	p.mu.Unlock()

	if changed {
		p.opts.Observer.StageChanged(stage, task)
	} else {
		p.opts.Observer.TaskChanged(task)
	}
}

func (p *Provisioner) setTask(task string) {
	p.mu.Lock()
	p.status.Task = task
	p.mu.Unlock()
	p.opts.Observer.TaskChanged(task)
}

func (p *Provisioner) resetProgress() {
	p.opts.Observer.ProgressChanged(p.progress.reset())
}

// download runs one cancellable transfer, feeding the progress tracker.
func (p *Provisioner) download(ctx context.Context, url, dest string) error {
	p.resetProgress()

	attemptCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	return p.opts.Downloader.Download(attemptCtx, url, dest, func(delta, total int64) {
		p.opts.Observer.ProgressChanged(p.progress.add(delta, total))
	})
}

type step int

const (
	stepCheckArchive step = iota
	stepValidateFiles
	stepDownloadArchive
	stepCheckPlugin
	stepDownloadPlugin
	stepComplete
)

type run struct {
	p   *Provisioner
	id  string
	log *slog.Logger

	archiveAttempts int
	pluginAttempts  int
	downloaded      bool
	plugin          updateinfo.Info

	// lastMismatch is why the managed tree was last rejected.
	lastMismatch error
}

func (r *run) execute(ctx context.Context) error {
	next := stepCheckArchive
	for {
		var err error
		switch next {
		case stepCheckArchive:
			next, err = r.checkArchive(ctx)
		case stepValidateFiles:
			next, err = r.validateFiles(ctx)
		case stepDownloadArchive:
			next, err = r.downloadArchive(ctx)
		case stepCheckPlugin:
			next, err = r.checkPlugin(ctx)
		case stepDownloadPlugin:
			next, err = r.downloadPlugin(ctx)
		case stepComplete:
			return r.complete(ctx)
		}
		if err != nil {
			return err
		}
	}
}

// checkArchive is the first validation pass: a missing managed dir or a stale
// archive goes straight to a download.
func (r *run) checkArchive(ctx context.Context) (step, error) {
	p := r.p
	p.setStage(ValidatingFiles, "Validating resources...")

	managed := p.ManagedDir()
	if _, err := os.Stat(managed); err != nil {
		if !os.IsNotExist(err) {
			return 0, &StageError{Stage: ValidatingFiles, Op: "stat managed dir", Err: fmt.Errorf("%w: %v", ErrFilesystem, err)}
		}
		r.log.Info("creating managed directory", "dir", managed)
		if err := os.MkdirAll(managed, 0755); err != nil {
			return 0, &StageError{Stage: ValidatingFiles, Op: "create managed dir", Err: fmt.Errorf("%w: %v", ErrFilesystem, err)}
		}
		return stepDownloadArchive, nil
	}

	archive := p.ArchivePath()
	if _, err := os.Stat(archive); err == nil {
		records, err := p.opts.Hasher.Checksums(ctx, []string{archive})
		switch {
		case err != nil:
			r.log.Error("error checking archive", "archive", archive, "error", err)
		case len(records) > 0:
			_, hash, _ := ParseRecord(records[0])
			if hash == p.opts.Table.ArchiveResource().Checksum {
				r.log.Info("archive checksum valid, processing files")
				return stepValidateFiles, nil
			}
		}
	}

	r.log.Info("archive missing or invalid, downloading", "archive", archive)
	return stepDownloadArchive, nil
}

func (r *run) validateFiles(ctx context.Context) (step, error) {
	p := r.p
	p.setStage(ValidatingFiles, "Validating file checksums...")

	managed := p.ManagedDir()
	if _, err := os.Stat(managed); os.IsNotExist(err) {
		r.log.Info("managed directory does not exist", "dir", managed)
		return stepDownloadArchive, nil
	}

	files, err := CollectFiles(managed)
	if err != nil {
		return 0, &StageError{Stage: ValidatingFiles, Op: "collect files", Err: err}
	}
	if len(files) == 0 {
		r.log.Info("no files found in managed directory", "dir", managed)
		return stepDownloadArchive, nil
	}

	records, err := p.opts.Hasher.Checksums(ctx, files)
	if err != nil {
		return 0, &StageError{Stage: ValidatingFiles, Op: "compute checksums", Err: err}
	}

	if results := Validate(records, p.opts.Table); !AllValid(results) {
		failed := 0
		for _, ok := range results {
			if !ok {
				failed++
			}
		}
		r.lastMismatch = fmt.Errorf("%w: %d of %d resources", ErrChecksumMismatch, failed, len(results))
		r.log.Info("file validation failed, re-downloading", "dir", managed, "error", r.lastMismatch)
		if err := os.RemoveAll(managed); err != nil {
			return 0, &StageError{Stage: ValidatingFiles, Op: "wipe managed dir", Err: fmt.Errorf("%w: %v", ErrFilesystem, err)}
		}
		if err := os.MkdirAll(managed, 0755); err != nil {
			return 0, &StageError{Stage: ValidatingFiles, Op: "create managed dir", Err: fmt.Errorf("%w: %v", ErrFilesystem, err)}
		}
		return stepDownloadArchive, nil
	}

	r.log.Info("file validation successful", "files", len(files))
	return stepCheckPlugin, nil
}

func (r *run) downloadArchive(ctx context.Context) (step, error) {
	p := r.p
	r.archiveAttempts++
	if r.archiveAttempts > p.opts.MaxDownloadAttempts {
		err := fmt.Errorf("%w: gave up after %d attempts", ErrRetriesExhausted, p.opts.MaxDownloadAttempts)
		if r.lastMismatch != nil {
			err = fmt.Errorf("%w: %w", err, r.lastMismatch)
		}
		return 0, &StageError{Stage: DownloadingPrimaryArchive, Op: "download archive", Err: err}
	}

	p.setStage(DownloadingPrimaryArchive, "Downloading SAMP files...")
	r.downloaded = true
	checkFreeSpace(p.opts.DataDir)

	archive := p.ArchivePath()
	r.log.Info("downloading archive", "url", p.opts.ArchiveURL, "attempt", r.archiveAttempts)
	if err := p.download(ctx, p.opts.ArchiveURL, archive); err != nil {
		return 0, &StageError{Stage: DownloadingPrimaryArchive, Op: "download archive", Err: err}
	}

	p.setStage(Extracting, "Extracting files...")
	if err := p.opts.Extractor.Extract(ctx, archive, p.ManagedDir()); err != nil {
		if !errors.Is(err, ErrExtraction) {
			err = fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		return 0, &StageError{Stage: Extracting, Op: "extract archive", Err: err}
	}
	p.resetProgress()
	return stepValidateFiles, nil
}

// checkPlugin never fails the run on its own: without update info the client
// launches without the plugin.
func (r *run) checkPlugin(ctx context.Context) (step, error) {
	p := r.p
	p.setTask("Verifying OMP plugin...")

	if p.opts.UpdateInfo == nil {
		return stepComplete, nil
	}
	info, err := p.opts.UpdateInfo.Get(ctx)
	if err != nil {
		r.log.Error("continuing without OMP plugin", "error", fmt.Errorf("%w: %v", ErrUpdateInfoUnavailable, err))
		return stepComplete, nil
	}
	if !info.HasPlugin() {
		r.log.Warn("update info names no OMP plugin, continuing without it")
		return stepComplete, nil
	}
	r.plugin = info

	pluginPath := p.PluginPath()
	if err := os.MkdirAll(filepath.Dir(pluginPath), 0755); err != nil {
		r.log.Error("continuing without OMP plugin", "error", fmt.Errorf("%w: %v", ErrFilesystem, err))
		return stepComplete, nil
	}

	if _, err := os.Stat(pluginPath); err == nil {
		records, err := p.opts.Hasher.Checksums(ctx, []string{pluginPath})
		if err != nil {
			r.log.Warn("could not hash OMP plugin", "error", err)
		} else if pluginCurrent(records, info.OMPPluginChecksum) {
			r.log.Info("OMP plugin is up to date")
			return stepComplete, nil
		}
	}
	return stepDownloadPlugin, nil
}

func (r *run) downloadPlugin(ctx context.Context) (step, error) {
	p := r.p
	r.pluginAttempts++
	if r.pluginAttempts > p.opts.MaxDownloadAttempts {
		r.log.Error("continuing without OMP plugin", "error",
			fmt.Errorf("%w: plugin still stale after %d attempts", ErrRetriesExhausted, p.opts.MaxDownloadAttempts))
		return stepComplete, nil
	}

	p.setStage(DownloadingSecondaryPlugin, "Downloading OMP plugin...")
	r.downloaded = true

	r.log.Info("downloading OMP plugin", "url", r.plugin.OMPPluginDownload, "attempt", r.pluginAttempts)
	if err := p.download(ctx, r.plugin.OMPPluginDownload, p.PluginPath()); err != nil {
		if errors.Is(err, ErrDownloadAborted) {
			return 0, &StageError{Stage: DownloadingSecondaryPlugin, Op: "download plugin", Err: err}
		}
		r.log.Error("OMP plugin download failed, continuing without it", "error", err)
		return stepComplete, nil
	}
	p.resetProgress()

	if err := sleepCtx(ctx, p.opts.SettleDelay); err != nil {
		return 0, err
	}
	return stepValidateFiles, nil
}

func (r *run) complete(ctx context.Context) error {
	p := r.p
	p.setStage(Complete, "Ready to launch!")

	delay := p.opts.ReadyDelay
	if r.downloaded {
		delay = readyDelayAfterDownload
	}
	r.log.Info("resources ready", "downloaded", r.downloaded)
	return sleepCtx(ctx, delay)
}

func (r *run) fail(err error) {
	msg := UserMessage(err)
	r.p.mu.Lock()
	r.p.status.Error = err.Error()
	r.p.mu.Unlock()
	r.p.setStage(Failed, msg)

	r.log.Error("file checksum processing failed", "error", err)
	logs.Forward("File checksum processing failed: " + err.Error())
}

// pluginCurrent reports whether the first record carries the expected hash.
func pluginCurrent(records []string, expected string) bool {
	if len(records) == 0 {
		return false
	}
	_, hash, ok := ParseRecord(records[0])
	return ok && hash == expected
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
