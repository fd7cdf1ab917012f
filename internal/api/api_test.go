package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"oshirase/internal/cache"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/queue"
	"oshirase/internal/store"
	"oshirase/internal/testsupport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	store  *store.SQLiteStore
	queue  *queue.SQLiteQueue
	cache  *cache.Cache
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustOpenQueue(t, cfg)
	c := cache.New(cache.NewFileBackend(cfg.Cache.Path, nil), cache.Options{}, nil)

	testsupport.SeedMedia(t, st,
		media.Media{MediaID: 2, Kind: media.KindAnime, Status: media.StatusCompleted, Title: "Sousou no Frieren"},
		media.Media{MediaID: 1, Kind: media.KindAnime, Status: media.StatusCurrent, Title: "Dandadan",
			Latest: &media.Latest{Title: "Dandadan", Episode: 6}},
		media.Media{MediaID: 30, Kind: media.KindManga, Status: media.StatusCurrent, Title: "Kagurabachi"},
	)

	h, err := New(st, q, c, time.Minute, logging.NewNop())
	require.NoError(t, err)
	return &harness{store: st, queue: q, cache: c, router: h.Router()}
}

type response[T any] struct {
	Status int `json:"status"`
	Data   T   `json:"data"`
}

func do[T any](t *testing.T, router http.Handler, method, target, body string) (int, response[T]) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out response[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestListSortedByTitle(t *testing.T) {
	h := newHarness(t)

	code, resp := do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/anime", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Data, 2)
	require.Equal(t, "Dandadan", resp.Data[0].Title)
	require.Equal(t, "Sousou no Frieren", resp.Data[1].Title)
	require.NotNil(t, resp.Data[0].Latest)
}

func TestListStatusFilter(t *testing.T) {
	h := newHarness(t)

	code, resp := do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/anime?status=current,paused", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Data, 1)
	require.Equal(t, int64(1), resp.Data[0].MediaID)

	code, resp = do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/anime?status=DROPPED", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	require.Empty(t, resp.Data)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)

	code, resp := do[map[string]string](t, h.router, http.MethodGet, "/api/v1/manga?status=WATCHING", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.Contains(t, resp.Data["message"], "WATCHING")
}

func TestListServedFromCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, resp := do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/manga", "")
	require.Len(t, resp.Data, 1)

	testsupport.SeedMedia(t, h.store, media.Media{MediaID: 31, Kind: media.KindManga, Status: media.StatusCurrent, Title: "Akane-banashi"})

	_, resp = do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/manga", "")
	require.Len(t, resp.Data, 1, "second read should come from cache")

	_, resp = do[[]media.Media](t, h.router, http.MethodGet, "/api/v1/manga?skip_cache=true", "")
	require.Len(t, resp.Data, 2)
	require.Equal(t, "Akane-banashi", resp.Data[0].Title)

	_, ok := cache.Get[[]media.Media](ctx, h.cache, ListCacheKey(media.KindManga), false)
	require.True(t, ok)
	require.Equal(t, "api:manga:list", ListCacheKey(media.KindManga))
}

func TestGetByID(t *testing.T) {
	h := newHarness(t)

	code, resp := do[media.Media](t, h.router, http.MethodGet, "/api/v1/anime/1", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Dandadan", resp.Data.Title)

	code, manga := do[media.Media](t, h.router, http.MethodGet, "/api/v1/manga/30", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Kagurabachi", manga.Data.Title)
}

func TestGetMissingOrInvalidID(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{"/api/v1/anime/999", "/api/v1/anime/abc", "/api/v1/anime/-3", "/api/v1/manga/1"} {
		t.Run(target, func(t *testing.T) {
			code, resp := do[map[string]string](t, h.router, http.MethodGet, target, "")
			require.Equal(t, http.StatusNotFound, code)
			require.Equal(t, http.StatusNotFound, resp.Status)
			require.Contains(t, resp.Data["message"], "could not find")
		})
	}
}

func TestEnqueueJobs(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		code  int
		token string
	}{
		{name: "empty body", body: "", code: http.StatusAccepted, token: queue.TokenRunAll},
		{name: "user id", body: `{"user_id": 42}`, code: http.StatusAccepted, token: "run:user:42"},
		{name: "explicit token", body: `{"token": "run:user:7"}`, code: http.StatusAccepted, token: "run:user:7"},
		{name: "unknown token", body: `{"token": "rip:disc"}`, code: http.StatusBadRequest},
		{name: "malformed body", body: `{"token":`, code: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			code, resp := do[map[string]string](t, h.router, http.MethodPost, "/api/v1/jobs", tc.body)
			require.Equal(t, tc.code, code)

			pending, err := h.queue.Pending(context.Background())
			require.NoError(t, err)
			if tc.token == "" {
				require.Empty(t, pending)
				return
			}
			require.Equal(t, tc.token, resp.Data["token"])
			require.Equal(t, []string{tc.token}, pending)
		})
	}
}

func TestEnqueueWithoutQueue(t *testing.T) {
	h := newHarness(t)
	handler, err := New(h.store, nil, nil, 0, nil)
	require.NoError(t, err)

	code, _ := do[map[string]string](t, handler.Router(), http.MethodPost, "/api/v1/jobs", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealthReportsQueue(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.queue.Enqueue(context.Background(), queue.TokenRunAll))

	code, resp := do[Health](t, h.router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", resp.Data.Status)
	require.NotNil(t, resp.Data.Queue)
	require.Equal(t, 1, resp.Data.Queue.Pending)
}

func TestStoreFailureHidesDetail(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close(context.Background()))

	code, resp := do[map[string]string](t, h.router, http.MethodGet, "/api/v1/anime?skip_cache=true", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, http.StatusText(http.StatusServiceUnavailable), resp.Data["message"])
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, nil, nil, 0, nil)
	require.Error(t, err)
}

func TestServerRunsUntilCancelled(t *testing.T) {
	h := newHarness(t)
	handler, err := New(h.store, h.queue, nil, 0, nil)
	require.NoError(t, err)
	srv, err := NewServer("127.0.0.1:0", handler, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var addr string
	select {
	case a := <-srv.Ready():
		addr = a.String()
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer("", &Handler{}, nil)
	require.Error(t, err)
	_, err = NewServer("127.0.0.1:0", nil, nil)
	require.Error(t, err)
}
