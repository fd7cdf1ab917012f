package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"oshirase/internal/aggregator"
	"oshirase/internal/config"
	"oshirase/internal/media"
	"oshirase/internal/store"
	"oshirase/internal/testsupport"
)

const listsResponse = `{"data":{
  "anime":{"lists":[{"name":"Watching","status":"CURRENT","entries":[
    {"status":"CURRENT","progress":3,"media":{"id":1,"type":"ANIME","episodes":12,"title":{"romaji":"Dandadan"}}},
    {"status":"COMPLETED","progress":28,"media":{"id":2,"type":"ANIME","episodes":28,"title":{"romaji":"Sousou no Frieren"}}}
  ]}]},
  "manga":{"lists":[{"name":"Reading","status":"CURRENT","entries":[
    {"status":"CURRENT","progress":60,"media":{"id":30,"type":"MANGA","title":{"romaji":"Kagurabachi"}}}
  ]}]}
}}`

type cliEnv struct {
	cfg        *config.Config
	configPath string
	calls      *atomic.Int32
}

func newAniListServer(t *testing.T, calls *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(body.Query, "Viewer") {
			_, _ = w.Write([]byte(`{"data":{"Viewer":{"id":42,"name":"kumo"}}}`))
			return
		}
		_, _ = w.Write([]byte(listsResponse))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupCLIEnv(t *testing.T, anilistStatus int) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	calls := &atomic.Int32{}
	srv := newAniListServer(t, calls, anilistStatus)
	cfg := testsupport.NewConfig(t, testsupport.WithAniList(srv.URL, 0))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliEnv{cfg: cfg, configPath: configPath, calls: calls}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	raw, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, ctx context.Context, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func TestRunPrintsJSONAndPersists(t *testing.T) {
	env := setupCLIEnv(t, http.StatusOK)

	out, err := runCLI(t, context.Background(), env.configPath, "run", "--print")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var data aggregator.Data
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if data.User.ID != 42 || len(data.Lists.Anime) != 2 || len(data.Lists.Manga) != 1 {
		t.Fatalf("unexpected run data %+v", data)
	}

	st := testsupport.MustOpenStore(t, env.cfg)
	var entries []media.Media
	if err := st.FindAll(context.Background(), store.CollectionAnime, &entries); err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 persisted anime, got %d", len(entries))
	}
}

func TestRootCommandRunsPipelineAndHonoursSkipCache(t *testing.T) {
	env := setupCLIEnv(t, http.StatusOK)
	ctx := context.Background()

	if _, err := runCLI(t, ctx, env.configPath); err != nil {
		t.Fatalf("first run: %v", err)
	}
	afterFirst := env.calls.Load()
	if afterFirst != 2 {
		t.Fatalf("expected viewer and lists requests, got %d", afterFirst)
	}

	if _, err := runCLI(t, ctx, env.configPath); err != nil {
		t.Fatalf("cached run: %v", err)
	}
	if got := env.calls.Load(); got != afterFirst {
		t.Fatalf("cached run hit the list source (%d calls)", got)
	}

	if _, err := runCLI(t, ctx, env.configPath, "--skip-cache"); err != nil {
		t.Fatalf("bypass run: %v", err)
	}
	if got := env.calls.Load(); got != afterFirst+2 {
		t.Fatalf("bypass run should refetch, got %d calls", got)
	}
}

func TestRunFailureReturnsError(t *testing.T) {
	env := setupCLIEnv(t, http.StatusBadGateway)

	_, err := runCLI(t, context.Background(), env.configPath, "run")
	if err == nil || !strings.Contains(err.Error(), "pipeline run failed") {
		t.Fatalf("expected pipeline failure, got %v", err)
	}
}

func TestWorkerModeDrainsQueue(t *testing.T) {
	env := setupCLIEnv(t, http.StatusOK)

	if _, err := runCLI(t, context.Background(), env.configPath, "enqueue"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := runCLI(t, ctx, env.configPath, "--worker-mode"); err != nil {
		t.Fatalf("worker: %v", err)
	}

	st := testsupport.MustOpenStore(t, env.cfg)
	n, err := st.Count(context.Background(), store.CollectionManga)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 persisted manga, got %d (%v)", n, err)
	}
	q := testsupport.MustOpenQueue(t, env.cfg)
	pending, _ := q.Pending(context.Background())
	failed, _ := q.Failed(context.Background())
	if len(pending) != 0 || len(failed) != 0 {
		t.Fatalf("queue not drained: pending=%v failed=%v", pending, failed)
	}
}

func TestEnqueueAndQueueStatus(t *testing.T) {
	env := setupCLIEnv(t, http.StatusOK)
	ctx := context.Background()

	out, err := runCLI(t, ctx, env.configPath, "enqueue")
	if err != nil || !strings.Contains(out, "Enqueued run:all") {
		t.Fatalf("enqueue default: %q, %v", out, err)
	}
	if _, err := runCLI(t, ctx, env.configPath, "enqueue", "42"); err != nil {
		t.Fatalf("enqueue id: %v", err)
	}
	if _, err := runCLI(t, ctx, env.configPath, "enqueue", "rip:disc"); err == nil {
		t.Fatal("expected unknown token to be rejected")
	}

	out, err = runCLI(t, ctx, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	var status queueStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	if status.Pending != 2 || status.Failed != 0 {
		t.Fatalf("unexpected stats %+v", status)
	}
	if status.PendingTokens[0] != "run:all" || status.PendingTokens[1] != "run:user:42" {
		t.Fatalf("unexpected pending order %v", status.PendingTokens)
	}
}

func TestQueueRecoverAndClear(t *testing.T) {
	env := setupCLIEnv(t, http.StatusOK)
	ctx := context.Background()

	q := testsupport.MustOpenQueue(t, env.cfg)
	for _, token := range []string{"run:all", "run:user:7"} {
		if err := q.Enqueue(ctx, token); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if _, ok, err := q.Claim(ctx, time.Second); err != nil || !ok {
			t.Fatalf("Claim: ok=%v err=%v", ok, err)
		}
	}

	out, err := runCLI(t, ctx, env.configPath, "queue", "recover")
	if err != nil || !strings.Contains(out, "Recovered 2 job(s)") {
		t.Fatalf("recover: %q, %v", out, err)
	}

	if _, ok, err := q.Claim(ctx, time.Second); err != nil || !ok {
		t.Fatalf("Claim after recover: ok=%v err=%v", ok, err)
	}
	out, err = runCLI(t, ctx, env.configPath, "queue", "clear")
	if err != nil || !strings.Contains(out, "Cleared failed jobs") {
		t.Fatalf("clear: %q, %v", out, err)
	}
	failed, err := q.Failed(ctx)
	if err != nil || len(failed) != 0 {
		t.Fatalf("failed list after clear: %v, %v", failed, err)
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "run:all", want: "run:all"},
		{raw: " run:user:9 ", want: "run:user:9"},
		{raw: "15", want: "run:user:15"},
		{raw: "0", wantErr: true},
		{raw: "run:user:abc", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseToken(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseToken(%q) = %q, want error", tc.raw, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseToken(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestBuildMediaRows(t *testing.T) {
	rows := buildMediaRows([]media.Media{
		{MediaID: 1, Title: "Dandadan", Status: media.StatusCurrent, Progress: 3, Episodes: 12,
			Schedule: &media.Schedule{Day: media.Thursday, Time: "17:30"},
			Latest:   &media.Latest{Episode: 6}},
		{MediaID: 30, Title: "Kagurabachi", Status: media.StatusCurrent, Progress: 60},
	})
	want := [][]string{
		{"1", "Dandadan", "CURRENT", "3/12", "Thursday 17:30", "6"},
		{"30", "Kagurabachi", "CURRENT", "60", "", ""},
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}
