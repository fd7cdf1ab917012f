package subsplease

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
)

const schedulePage = `<html><body>
<table id="full-schedule-table">
  <tr class="all-schedule-item"><td><a href="/shows/orphan">Orphan Show</a></td><td class="all-schedule-time">00:00</td></tr>
  <tr class="day-of-week"><td><h2>Monday</h2></td></tr>
  <tr class="all-schedule-item"><td><a href="/shows/dandadan">Dandadan</a></td><td class="all-schedule-time">10:30</td></tr>
  <tr class="all-schedule-item"><td><a href="/shows/notime">No Time</a></td><td class="all-schedule-time"></td></tr>
  <tr class="day-of-week"><td><h2>Tuesday</h2></td></tr>
  <tr class="all-schedule-item"><td><a href="/shows/frieren">Sousou no Frieren &amp; Friends</a></td><td class="all-schedule-time">17:00</td></tr>
  <tr class="day-of-week"><td><h2>Someday</h2></td></tr>
  <tr class="all-schedule-item"><td><a href="/shows/lost">Lost Day</a></td><td class="all-schedule-time">12:00</td></tr>
</table>
</body></html>`

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>SubsPlease RSS</title>
<item><title>[SubsPlease] Dandadan - 05 (720p) [AAAA].mkv</title><link>https://example.org/5</link><category>Dandadan - 720</category></item>
<item><title>[SubsPlease] Dandadan - 06 (720p) [BBBB].mkv</title><link>https://example.org/6</link><category>Dandadan - 720</category></item>
<item><title>[SubsPlease] Dandadan - 04v2 (720p) [CCCC].mkv</title><link>https://example.org/4</link><category>Dandadan - 720</category></item>
<item><title>[SubsPlease] Frieren Special (720p) [DDDD].mkv</title><link>https://example.org/s</link><category>Frieren - 720</category></item>
<item><title>No category</title><link>https://example.org/x</link></item>
</channel></rss>`

func TestParseSchedule(t *testing.T) {
	entries, err := ParseSchedule([]byte(schedulePage))
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	want := []media.Schedule{
		{Title: "Dandadan", Day: media.Monday, Time: "10:30"},
		{Title: "Sousou no Frieren & Friends", Day: media.Tuesday, Time: "17:00"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseScheduleWithoutTable(t *testing.T) {
	_, err := ParseSchedule([]byte(`<html><body><p>maintenance</p></body></html>`))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestScheduleScraperCachesUntilTomorrow(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(schedulePage))
	}))
	defer srv.Close()

	c := cache.New(cache.NewFileBackend(filepath.Join(t.TempDir(), "cache.json"), nil), cache.Options{}, nil)
	scraper, err := NewScheduleScraper(config.SubsPlease{ScheduleURL: srv.URL, RequestTimeout: 5}, nil, WithCache(c))
	if err != nil {
		t.Fatalf("NewScheduleScraper: %v", err)
	}
	ctx := context.Background()
	for range 2 {
		entries, err := scraper.Extract(ctx, sources.Options{})
		if err != nil || len(entries) != 2 {
			t.Fatalf("Extract = %v, %v", entries, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one page fetch, got %d", calls.Load())
	}
	if _, err := scraper.Extract(ctx, sources.Options{Bypass: true}); err != nil {
		t.Fatalf("bypass Extract: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected bypass to refetch, got %d", calls.Load())
	}
}

func TestParseFeedKeepsHighestEpisode(t *testing.T) {
	latest, err := ParseFeed([]byte(feed))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	want := []media.Latest{
		{Title: "Dandadan", Episode: 6, URL: "https://example.org/6"},
		{Title: "Frieren", Episode: 0, URL: "https://example.org/s"},
	}
	if len(latest) != len(want) {
		t.Fatalf("got %+v, want %+v", latest, want)
	}
	for i := range want {
		if latest[i] != want[i] {
			t.Errorf("latest[%d] = %+v, want %+v", i, latest[i], want[i])
		}
	}
}

func TestRSSFeedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	reader, err := NewRSSFeed(config.SubsPlease{RSSURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewRSSFeed: %v", err)
	}
	_, err = reader.Extract(context.Background(), sources.Options{})
	if !errors.Is(err, services.ErrTransient) || !services.Retryable(err) {
		t.Fatalf("expected retryable transient error, got %v", err)
	}
}

func TestEpisodeNumber(t *testing.T) {
	tests := []struct {
		title string
		want  uint64
	}{
		{"[SubsPlease] Show - 12 (720p) [X].mkv", 12},
		{"[SubsPlease] Show - 1105 (720p) [X].mkv", 1105},
		{"[SubsPlease] Show - 03v2 (720p) [X].mkv", 3},
		{"[SubsPlease] Show - 12 (1080p) [X].mkv", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := episodeNumber(tt.title); got != tt.want {
			t.Errorf("episodeNumber(%q) = %d, want %d", tt.title, got, tt.want)
		}
	}
}
