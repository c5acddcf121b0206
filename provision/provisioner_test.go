package provision

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"omp-launcher/updateinfo"
	"omp-launcher/utils"
)

const (
	testArchiveURL = "https://assets.example.com/samp_clients.7z"
	testPluginURL  = "https://assets.example.com/omp-client.dll"
)

var (
	archiveBytes = []byte("7z-archive-bytes-v1")
	pluginBytes  = []byte("omp-client-plugin-v1")
	clientFiles  = map[string]string{
		"037R1/samp.dll":      "r1 client",
		"03DL/samp.dll":       "dl client",
		"shared/bass.dll":     "bass",
		"shared/sampaux3.ttf": "font",
	}
)

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func testTable(t *testing.T) *Table {
	t.Helper()
	table := &Table{
		ManagedDir: "samp",
		Archive:    "samp_clients.7z",
		Resources: []Resource{
			{Name: "samp_clients.7z", Dir: "samp", Checksum: md5hex(archiveBytes)},
			{Name: "samp.dll", Key: "samp-037R1", Dir: "samp/037R1", Checksum: md5hex([]byte(clientFiles["037R1/samp.dll"]))},
			{Name: "samp.dll", Key: "samp-03DL", Dir: "samp/03DL", Checksum: md5hex([]byte(clientFiles["03DL/samp.dll"]))},
			{Name: "bass.dll", Dir: "samp/shared", Checksum: md5hex([]byte(clientFiles["shared/bass.dll"]))},
			{Name: "sampaux3.ttf", Dir: "samp/shared", Checksum: md5hex([]byte(clientFiles["shared/sampaux3.ttf"]))},
		},
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("test table invalid: %v", err)
	}
	return table
}

// fakeDownloader serves fixed bodies in three chunks.
type fakeDownloader struct {
	bodies map[string][]byte
	fail   map[string]error

	// block, when set, stalls every download after its first chunk until ctx ends.
	block   bool
	started chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string, onProgress utils.ProgressFunc) error {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = map[string]int{}
	}
	d.calls[url]++
	d.mu.Unlock()

	if err := d.fail[url]; err != nil {
		return err
	}
	body, ok := d.bodies[url]
	if !ok {
		return fmt.Errorf("%w: no body for %s", utils.ErrNetwork, url)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	chunk := (len(body) + 2) / 3
	for off := 0; off < len(body); off += chunk {
		end := off + chunk
		if end > len(body) {
			end = len(body)
		}
		if _, err := f.Write(body[off:end]); err != nil {
			return err
		}
		onProgress(int64(end-off), int64(len(body)))
		if d.block {
			if d.started != nil {
				close(d.started)
				d.started = nil
			}
			<-ctx.Done()
			return fmt.Errorf("%w: %v", utils.ErrDownloadAborted, ctx.Err())
		}
	}
	return nil
}

func (d *fakeDownloader) count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[url]
}

// fakeExtractor writes a fixed file set into dest, or fails with err.
type fakeExtractor struct {
	files map[string]string
	err   error
	calls int
}

func (e *fakeExtractor) Extract(ctx context.Context, archive, dest string) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	return writeTree(dest, e.files)
}

func writeTree(root string, files map[string]string) error {
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

type staticInfo struct {
	info  updateinfo.Info
	err   error
	calls int
}

func (s *staticInfo) Get(ctx context.Context) (updateinfo.Info, error) {
	s.calls++
	return s.info, s.err
}

type recorder struct {
	mu       sync.Mutex
	stages   []Stage
	progress []Progress
}

func (r *recorder) StageChanged(stage Stage, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) TaskChanged(string) {}

func (r *recorder) ProgressChanged(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) Stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stage(nil), r.stages...)
}

func (r *recorder) count(stage Stage) int {
	n := 0
	for _, s := range r.Stages() {
		if s == stage {
			n++
		}
	}
	return n
}

type fixture struct {
	dataDir    string
	downloader *fakeDownloader
	extractor  *fakeExtractor
	obs        *recorder
	opts       Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dataDir: t.TempDir(),
		downloader: &fakeDownloader{bodies: map[string][]byte{
			testArchiveURL: archiveBytes,
			testPluginURL:  pluginBytes,
		}},
		extractor: &fakeExtractor{files: clientFiles},
		obs:       &recorder{},
	}
	f.opts = Options{
		DataDir:             f.dataDir,
		ArchiveURL:          testArchiveURL,
		Table:               testTable(t),
		Downloader:          f.downloader,
		Extractor:           f.extractor,
		Hasher:              FileHasher{Workers: 2},
		Observer:            f.obs,
		MaxDownloadAttempts: 3,
		SettleDelay:         time.Millisecond,
		ReadyDelay:          time.Millisecond,
	}
	return f
}

func (f *fixture) provisioner(t *testing.T) *Provisioner {
	t.Helper()
	p, err := New(f.opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// seedValid lays out a managed tree that passes validation.
func (f *fixture) seedValid(t *testing.T) {
	t.Helper()
	managed := filepath.Join(f.dataDir, "samp")
	if err := writeTree(managed, clientFiles); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(managed, "samp_clients.7z"), archiveBytes, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunFreshInstall(t *testing.T) {
	f := newFixture(t)
	p := f.provisioner(t)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Stage{Initializing, ValidatingFiles, DownloadingPrimaryArchive, Extracting, ValidatingFiles, Complete}
	if got := f.obs.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if n := f.downloader.count(testArchiveURL); n != 1 {
		t.Errorf("archive downloaded %d times, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(f.dataDir, "samp", "037R1", "samp.dll")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
	if st := p.Status(); st.Stage != Complete || st.Running || st.RunID == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunRedownloadsOnMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedValid(t)
	managed := filepath.Join(f.dataDir, "samp")
	if err := os.WriteFile(filepath.Join(managed, "03DL", "samp.dll"), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(managed, "stray.txt")
	if err := os.WriteFile(stray, []byte("left over"), 0644); err != nil {
		t.Fatal(err)
	}

	p := f.provisioner(t)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Stage{Initializing, ValidatingFiles, DownloadingPrimaryArchive, Extracting, ValidatingFiles, Complete}
	if got := f.obs.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Errorf("managed dir was not wiped, stray file stat err = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(managed, "03DL", "samp.dll"))
	if err != nil || string(data) != clientFiles["03DL/samp.dll"] {
		t.Errorf("file not restored: %q, %v", data, err)
	}
}

func TestRunIsIdempotentOnValidTree(t *testing.T) {
	f := newFixture(t)
	f.seedValid(t)
	p := f.provisioner(t)

	for i := 0; i < 2; i++ {
		f.obs.mu.Lock()
		f.obs.stages = nil
		f.obs.mu.Unlock()

		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		want := []Stage{Initializing, ValidatingFiles, Complete}
		if got := f.obs.Stages(); !reflect.DeepEqual(got, want) {
			t.Errorf("run %d stages = %v, want %v", i, got, want)
		}
	}
	if n := f.downloader.count(testArchiveURL); n != 0 {
		t.Errorf("archive downloaded %d times, want 0", n)
	}
}

func TestRunDownloadsMissingPlugin(t *testing.T) {
	f := newFixture(t)
	f.seedValid(t)
	info := &staticInfo{info: updateinfo.Info{
		OMPPluginChecksum: md5hex(pluginBytes),
		OMPPluginDownload: testPluginURL,
	}}
	f.opts.UpdateInfo = info
	p := f.provisioner(t)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := f.obs.count(DownloadingSecondaryPlugin); n != 1 {
		t.Errorf("plugin stage entered %d times, want 1", n)
	}
	stages := f.obs.Stages()
	if stages[len(stages)-1] != Complete {
		t.Errorf("final stage = %v", stages[len(stages)-1])
	}
	if _, err := os.Stat(p.PluginPath()); err != nil {
		t.Errorf("plugin not written: %v", err)
	}

	// A second run finds the plugin current.
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n := f.downloader.count(testPluginURL); n != 1 {
		t.Errorf("plugin downloaded %d times, want 1", n)
	}
}

func TestPluginCurrent(t *testing.T) {
	if !pluginCurrent([]string{"path/to/plugin|abc123"}, "abc123") {
		t.Error("matching hash should skip the download")
	}
	if pluginCurrent([]string{"path/to/plugin|abc124"}, "abc123") {
		t.Error("stale hash reported current")
	}
	if pluginCurrent(nil, "abc123") {
		t.Error("no records reported current")
	}
}

func TestRunWithoutUpdateInfoCompletes(t *testing.T) {
	f := newFixture(t)
	f.seedValid(t)
	info := &staticInfo{err: errors.New("503 Service Unavailable")}
	f.opts.UpdateInfo = info
	p := f.provisioner(t)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Status().Stage != Complete {
		t.Errorf("stage = %v, want complete", p.Status().Stage)
	}
	if info.calls != 1 || f.downloader.count(testPluginURL) != 0 {
		t.Errorf("info calls=%d plugin downloads=%d", info.calls, f.downloader.count(testPluginURL))
	}
}

func TestCancelMidDownload(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	f.downloader.block = true
	f.downloader.started = started
	p := f.provisioner(t)

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background()) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}
	if !p.Cancel() {
		t.Fatal("Cancel found no download in flight")
	}

	var err error
	select {
	case err = <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}
	if !errors.Is(err, ErrDownloadAborted) {
		t.Fatalf("err = %v, want ErrDownloadAborted", err)
	}
	if f.obs.count(Extracting) != 0 || f.extractor.calls != 0 {
		t.Error("extraction should not start after a cancelled download")
	}
	if _, err := os.Stat(p.ArchivePath()); err != nil {
		t.Errorf("partial archive should remain: %v", err)
	}
	st := p.Status()
	if st.Stage != Failed || st.Task != "Download cancelled." {
		t.Errorf("status = %+v", st)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	f.downloader.block = true
	f.downloader.started = started
	p := f.provisioner(t)

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background()) }()
	<-started

	if err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run err = %v, want ErrAlreadyRunning", err)
	}
	p.Cancel()
	<-errc
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.extractor.files = map[string]string{"037R1/samp.dll": "corrupt"}
	f.opts.MaxDownloadAttempts = 2
	p := f.provisioner(t)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("err = %v, want it to carry ErrChecksumMismatch", err)
	}
	if n := f.downloader.count(testArchiveURL); n != 2 {
		t.Errorf("archive downloaded %d times, want 2", n)
	}
	if p.Status().Stage != Failed {
		t.Errorf("stage = %v, want failed", p.Status().Stage)
	}
}

func TestExtractionFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("unexpected end of archive")
	p := f.provisioner(t)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}

	want := []Stage{Initializing, ValidatingFiles, DownloadingPrimaryArchive, Extracting, Failed}
	if got := f.obs.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if n := f.downloader.count(testArchiveURL); n != 1 {
		t.Errorf("archive downloaded %d times, want 1", n)
	}
	st := p.Status()
	if st.Stage != Failed || st.Task != "Failed to extract SAMP files. Please restart the application." {
		t.Errorf("status = %+v", st)
	}
}

func TestRunWithRealArchive(t *testing.T) {
	archive, err := os.ReadFile(filepath.Join("testdata", "client.7z"))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	f.downloader.bodies[testArchiveURL] = archive
	f.opts.Extractor = SevenZipExtractor{}
	f.opts.Table = &Table{
		ManagedDir: "samp",
		Archive:    "samp_clients.7z",
		Resources: []Resource{
			{Name: "samp_clients.7z", Dir: "samp", Checksum: md5hex(archive)},
			{Name: "samp.dll", Dir: "samp/037R1", Checksum: md5hex([]byte("samp 037R1 client\n"))},
			{Name: "bass.dll", Dir: "samp/shared", Checksum: md5hex([]byte("bass audio\n"))},
		},
	}
	if err := f.opts.Table.Validate(); err != nil {
		t.Fatal(err)
	}
	p := f.provisioner(t)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Stage{Initializing, ValidatingFiles, DownloadingPrimaryArchive, Extracting, ValidatingFiles, Complete}
	if got := f.obs.Stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	data, err := os.ReadFile(filepath.Join(f.dataDir, "samp", "shared", "bass.dll"))
	if err != nil || string(data) != "bass audio\n" {
		t.Errorf("bass.dll = %q, %v", data, err)
	}
}

func TestNetworkFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.downloader.fail = map[string]error{testArchiveURL: fmt.Errorf("%w: connection refused", utils.ErrNetwork)}
	p := f.provisioner(t)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if got := p.Status().Task; got != "Failed to download SAMP files. Please check your connection." {
		t.Errorf("task = %q", got)
	}
	if f.extractor.calls != 0 {
		t.Error("extractor called after failed download")
	}
}

func TestProgressIsMonotonicWithinAttempt(t *testing.T) {
	f := newFixture(t)
	p := f.provisioner(t)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f.obs.mu.Lock()
	defer f.obs.mu.Unlock()
	var last Progress
	sawFull := false
	for _, pr := range f.obs.progress {
		if pr == (Progress{}) {
			last = pr
			continue
		}
		if pr.BytesReceived < last.BytesReceived {
			t.Fatalf("progress went backwards: %+v after %+v", pr, last)
		}
		if pr.Percent < 0 || pr.Percent > 100 {
			t.Fatalf("percent out of range: %+v", pr)
		}
		if pr.Percent == 100 {
			sawFull = true
		}
		last = pr
	}
	if !sawFull {
		t.Error("download never reported 100%")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&StageError{Stage: DownloadingPrimaryArchive, Op: "download archive", Err: ErrNetwork}, "Failed to download SAMP files. Please check your connection."},
		{&StageError{Stage: DownloadingSecondaryPlugin, Op: "download plugin", Err: ErrNetwork}, "Failed to download OMP plugin. Please check your connection."},
		{fmt.Errorf("wrapped: %w", ErrDownloadAborted), "Download cancelled."},
		{ErrFilesystem, "File validation failed. Please restart the application."},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
