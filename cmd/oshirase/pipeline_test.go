package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"oshirase/internal/aggregator"
	"oshirase/internal/config"
	"oshirase/internal/media"
	"oshirase/internal/store"
	"oshirase/internal/testsupport"
)

const schedulePage = `<html><body><table id="full-schedule-table">
<tr class="day-of-week"><td><h2>Monday</h2></td></tr>
<tr class="all-schedule-item"><td><a href="/shows/dandadan">Dandadan</a></td><td class="all-schedule-time">10:30</td></tr>
</table></body></html>`

const releaseFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>SubsPlease RSS</title>
<item><title>[SubsPlease] Dandadan - 05 (720p) [AAAA].mkv</title><link>https://example.org/5</link><category>Dandadan - 720</category></item>
<item><title>[SubsPlease] Dandadan - 06 (720p) [BBBB].mkv</title><link>https://example.org/6</link><category>Dandadan - 720</category></item>
</channel></rss>`

func serveBody(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeEnv(t *testing.T, calls *atomic.Int32, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	srv := newAniListServer(t, calls, http.StatusOK)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithAniList(srv.URL, 0)}, opts...)...)
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, path, cfg)
	return cfg, path
}

func TestRunEnrichesFromSubsPleaseWithoutCache(t *testing.T) {
	schedule := serveBody(t, "text/html", schedulePage)
	rss := serveBody(t, "application/rss+xml", releaseFeed)
	calls := &atomic.Int32{}
	cfg, path := writeEnv(t, calls,
		testsupport.WithSubsPlease(schedule.URL, rss.URL),
		testsupport.WithoutCache(),
	)
	ctx := context.Background()

	out, err := runCLI(t, ctx, path, "run", "--print")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var data aggregator.Data
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	var dandadan *media.Media
	for i := range data.Lists.Anime {
		if data.Lists.Anime[i].MediaID == 1 {
			dandadan = &data.Lists.Anime[i]
		}
	}
	if dandadan == nil || dandadan.Schedule == nil || dandadan.Latest == nil {
		t.Fatalf("Dandadan not enriched: %+v", dandadan)
	}
	if dandadan.Schedule.Day != media.Monday || dandadan.Schedule.Time != "10:30" {
		t.Fatalf("unexpected schedule %+v", dandadan.Schedule)
	}
	if dandadan.Latest.Episode != 6 || dandadan.Latest.URL != "https://example.org/6" {
		t.Fatalf("unexpected latest %+v", dandadan.Latest)
	}

	if _, err := runCLI(t, ctx, path, "run"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected every run to reach the list source, got %d calls", got)
	}

	st := testsupport.MustOpenStore(t, cfg)
	var stored media.Media
	found, err := st.FindOne(ctx, store.CollectionAnime, "media_id", int64(1), &stored)
	if err != nil || !found {
		t.Fatalf("FindOne: found=%v err=%v", found, err)
	}
	if stored.Latest == nil || stored.Latest.Episode != 6 {
		t.Fatalf("persisted record lost enrichment: %+v", stored)
	}
}

func TestWorkerModeWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	calls := &atomic.Int32{}
	cfg, path := writeEnv(t, calls, testsupport.WithRedis("redis://"+mr.Addr()+"/0"))

	if _, err := runCLI(t, context.Background(), path, "enqueue"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, err := mr.List(cfg.Worker.JobsKey)
	if err != nil || len(pending) != 1 || pending[0] != "run:all" {
		t.Fatalf("pending list = %v (%v)", pending, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := runCLI(t, ctx, path, "--worker-mode"); err != nil {
		t.Fatalf("worker: %v", err)
	}

	if mr.Exists(cfg.Worker.JobsKey) || mr.Exists(cfg.Worker.FailedKey) {
		t.Fatal("queue keys should be drained after the job")
	}
	if !mr.Exists(aggregator.CacheKey(0)) {
		t.Fatalf("expected run result cached under %s", aggregator.CacheKey(0))
	}
	st := testsupport.MustOpenStore(t, cfg)
	n, err := st.Count(context.Background(), store.CollectionAnime)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 persisted anime, got %d (%v)", n, err)
	}
}
