package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"omp-launcher/config"
	"omp-launcher/game"
	"omp-launcher/provision"
	"omp-launcher/updateinfo"
	"omp-launcher/utils"
)

type testEnv struct {
	srv   *Server
	store *config.Store
	hub   *Hub
	http  *httptest.Server
}

func newTestEnv(t *testing.T, selectDir func() (string, error)) *testEnv {
	t.Helper()

	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/launcher":
			w.Write([]byte(`{"version":"1.2.0","ompPluginChecksum":"abc123","ompPluginDownload":"https://assets.example.com/omp-client.dll"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(assets.Close)

	store, err := config.OpenStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub()
	go hub.Run(ctx)

	session := updateinfo.NewSession(&updateinfo.Client{URL: assets.URL + "/launcher"})
	prov, err := provision.New(provision.Options{
		DataDir:             t.TempDir(),
		ArchiveURL:          assets.URL + "/samp_clients.7z",
		UpdateInfo:          session,
		Observer:            hub,
		MaxDownloadAttempts: 1,
		ReadyDelay:          time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(Deps{
		Store:           store,
		Provisioner:     prov,
		Session:         session,
		Hub:             hub,
		Version:         "1.0.0",
		SelectDirectory: selectDir,
		RunContext:      ctx,
	})
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return &testEnv{srv: srv, store: store, hub: hub, http: httpSrv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestProvisioningLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"stage":"initializing"`) {
		t.Fatalf("initial status %d: %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/provision/start", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start = %d: %s", resp.StatusCode, body)
	}
	var started utils.APIResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode start reply: %v", err)
	}
	if !started.OK || started.RunID == "" || started.Stage == "" {
		t.Errorf("start reply = %+v", started)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}

	// The archive URL 404s, so the run must end in the failed stage.
	deadline := time.Now().Add(10 * time.Second)
	var finalTask string
	for time.Now().Before(deadline) {
		_, body = env.do(t, http.MethodGet, "/api/status", "")
		var raw struct {
			Running bool   `json:"running"`
			Stage   string `json:"stage"`
			Task    string `json:"task"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if !raw.Running && raw.Stage == "failed" {
			finalTask = raw.Task
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(finalTask, "check your connection") {
		t.Errorf("final task = %q", finalTask)
	}

	resp, body = env.do(t, http.MethodPost, "/api/provision/cancel", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"cancelled":false`) {
		t.Errorf("cancel with nothing running = %d: %s", resp.StatusCode, body)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/settings/sampVersion", `{"value":"037R1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set sampVersion = %d: %s", resp.StatusCode, body)
	}
	if env.store.Get().SampVersion != "037R1" {
		t.Errorf("store not updated: %+v", env.store.Get())
	}

	tests := []struct {
		key, body string
		want      int
	}{
		{"sampVersion", `{"value":"9.9"}`, http.StatusBadRequest},
		{"dataMerged", `{"value":"yes"}`, http.StatusBadRequest},
		{"nickName", `{"value":42}`, http.StatusBadRequest},
		{"favouriteColour", `{"value":"red"}`, http.StatusNotFound},
		{"dataMerged", `{"value":true}`, http.StatusOK},
	}
	for _, tt := range tests {
		resp, body := env.do(t, http.MethodPost, "/api/settings/"+tt.key, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("POST %s %s = %d, want %d (%s)", tt.key, tt.body, resp.StatusCode, tt.want, body)
		}
	}

	_, body = env.do(t, http.MethodGet, "/api/settings", "")
	var got config.Settings
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if !got.DataMerged || got.SampVersion != "037R1" {
		t.Errorf("settings = %+v", got)
	}
}

func TestSelectGamePath(t *testing.T) {
	install := t.TempDir()
	if err := os.WriteFile(filepath.Join(install, game.ExecutableName), []byte("MZ"), 0644); err != nil {
		t.Fatal(err)
	}

	picks := []struct {
		path string
		err  error
		want int
	}{
		{install, nil, http.StatusOK},
		{"", nil, http.StatusOK},
		{t.TempDir(), nil, http.StatusBadRequest},
		{"", ErrPickerBusy, http.StatusConflict},
	}
	for _, pick := range picks {
		env := newTestEnv(t, func() (string, error) { return pick.path, pick.err })
		resp, body := env.do(t, http.MethodPost, "/api/select-game-path", "")
		if resp.StatusCode != pick.want {
			t.Errorf("pick %q/%v = %d, want %d (%s)", pick.path, pick.err, resp.StatusCode, pick.want, body)
		}
		if pick.path == install && env.store.Get().GamePath != install {
			t.Errorf("game path not saved: %+v", env.store.Get())
		}
	}

	env := newTestEnv(t, nil)
	if resp, _ := env.do(t, http.MethodPost, "/api/select-game-path", ""); resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("no picker = %d", resp.StatusCode)
	}
}

func TestUpdateInfoEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/api/update-info", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update-info = %d: %s", resp.StatusCode, body)
	}
	var res updateinfo.CheckResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if !res.UpdateAvailable || res.CurrentVersion != "1.0.0" || res.Latest.Version != "1.2.0" {
		t.Errorf("result = %+v", res)
	}
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return msg
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.http.URL, "/ws/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != "status" {
		t.Fatalf("first event = %q, want status", msg.Type)
	}

	deadline := time.Now().Add(5 * time.Second)
	for env.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env.hub.ProgressChanged(provision.Progress{BytesReceived: 1000, BytesTotal: 2000, Percent: 50})
	if msg := readMessage(t, conn); msg.Type != "progress" {
		t.Fatalf("event = %q, want progress", msg.Type)
	}

	env.hub.StageChanged(provision.Complete, "Ready to launch!")
	env.hub.SettingsChanged(config.Change{Key: "nickName", Value: "Carl"})

	for _, want := range []string{"ready", "settings"} {
		if msg := readMessage(t, conn); msg.Type != want {
			t.Errorf("event = %q, want %q", msg.Type, want)
		}
	}
}

func TestHubKeepsStageEventsDuringProgressFlood(t *testing.T) {
	hub := NewHub()
	for i := 1; i <= 300; i++ {
		hub.ProgressChanged(provision.Progress{BytesReceived: uint64(i), BytesTotal: 300, Percent: float64(i) / 3})
	}

	var latest ServerMessage
	if err := json.Unmarshal(hub.takeProgress(), &latest); err != nil {
		t.Fatalf("decode pending progress: %v", err)
	}
	content, _ := latest.Content.(map[string]any)
	if content["bytesReceived"] != float64(300) {
		t.Errorf("pending progress = %v, want the last update", latest.Content)
	}

	for i := 0; i < 300; i++ {
		hub.ProgressChanged(provision.Progress{BytesReceived: uint64(i)})
	}
	hub.StageChanged(provision.Complete, "Ready to launch!")

	var types []string
	for len(hub.broadcast) > 0 {
		var msg ServerMessage
		if err := json.Unmarshal(<-hub.broadcast, &msg); err != nil {
			t.Fatal(err)
		}
		types = append(types, msg.Type)
	}
	if len(types) != 1 || types[0] != "ready" {
		t.Errorf("queued events = %v, want [ready]", types)
	}
	if hub.takeProgress() != nil {
		t.Error("progress of the finished stage still pending")
	}
}

func TestMainSocketCloseTriggersShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.http.URL, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case <-env.srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown not triggered after main window closed")
	}
	env.srv.TriggerShutdown()
}
