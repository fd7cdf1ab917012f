package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"oshirase/internal/cache"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/queue"
	"oshirase/internal/services"
	"oshirase/internal/store"
)

type envelope struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// JobRequest is the optional body of POST /api/v1/jobs.
type JobRequest struct {
	Token  string `json:"token,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

// Health is the /healthz payload.
type Health struct {
	Status string       `json:"status"`
	Queue  *queue.Stats `json:"queue,omitempty"`
}

// Handler serves the read API. Queue and cache may be nil; without a queue the
// jobs route answers 503.
type Handler struct {
	store  store.Store
	queue  queue.Queue
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a handler over st.
func New(st store.Store, q queue.Queue, c *cache.Cache, ttl time.Duration, logger *slog.Logger) (*Handler, error) {
	if st == nil {
		return nil, errors.New("api requires a store")
	}
	return &Handler{
		store:  st,
		queue:  q,
		cache:  c,
		ttl:    ttl,
		logger: logging.NewComponentLogger(logger, "api"),
	}, nil
}

// ListCacheKey returns the cache key of the list response for kind.
func ListCacheKey(kind media.Kind) string {
	return cache.Key("api", kind.Collection(), "list")
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.logRequests(), handleErrors(h.logger))

	router.GET("/healthz", h.health)

	v1 := router.Group("/api/v1")
	for _, kind := range []media.Kind{media.KindAnime, media.KindManga} {
		group := v1.Group("/" + kind.Collection())
		group.GET("", h.list(kind))
		group.GET("/:id", h.get(kind))
	}
	v1.POST("/jobs", h.enqueue)
	return router
}

func (h *Handler) health(c *gin.Context) {
	payload := Health{Status: "ok"}
	if h.queue != nil {
		stats, err := queue.Snapshot(c.Request.Context(), h.queue)
		if err != nil {
			_ = c.Error(services.Wrap(services.ErrTransient, "api", "health", "queue unavailable", err))
			return
		}
		payload.Queue = &stats
	}
	c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: payload})
}

func (h *Handler) list(kind media.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := parseStatuses(c.Query("status"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		bypass, _ := strconv.ParseBool(c.Query("skip_cache"))

		entries, err := h.entries(c.Request.Context(), kind, bypass)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if len(statuses) > 0 {
			entries = slices.DeleteFunc(entries, func(m media.Media) bool {
				return !slices.Contains(statuses, m.Status)
			})
		}
		c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: entries})
	}
}

// entries reads the whole collection for kind, sorted by title, through the
// list cache.
func (h *Handler) entries(ctx context.Context, kind media.Kind, bypass bool) ([]media.Media, error) {
	key := ListCacheKey(kind)
	if cached, ok := cache.Get[[]media.Media](ctx, h.cache, key, bypass); ok {
		return cached, nil
	}
	entries := []media.Media{}
	if err := h.store.FindAll(ctx, kind.Collection(), &entries); err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(a, b media.Media) int {
		return strings.Compare(a.Title, b.Title)
	})
	cache.SetExpire(ctx, h.cache, key, entries, h.ttl, bypass)
	return entries, nil
}

func (h *Handler) get(kind media.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("id")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			_ = c.Error(NotFoundError{Kind: kind.Collection(), ID: raw})
			return
		}
		var entry media.Media
		found, err := h.store.FindOne(c.Request.Context(), kind.Collection(), store.IDKey(kind.Collection()), id, &entry)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if !found {
			_ = c.Error(NotFoundError{Kind: kind.Collection(), ID: raw})
			return
		}
		c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: entry})
	}
}

func (h *Handler) enqueue(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, envelope{
			Status: http.StatusServiceUnavailable,
			Data:   gin.H{"message": "job queue not configured"},
		})
		return
	}
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(services.Wrap(services.ErrValidation, "api", "jobs", "decode request body", err))
		return
	}
	token, err := jobToken(req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), token); err != nil {
		_ = c.Error(services.Wrap(services.ErrTransient, "api", "jobs", "enqueue", err))
		return
	}
	h.logger.Info("job enqueued", logging.String(logging.FieldJob, token))
	c.JSON(http.StatusAccepted, envelope{Status: http.StatusAccepted, Data: gin.H{"token": token}})
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		h.logger.Debug("request served",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(started)),
		)
	}
}

func jobToken(req JobRequest) (string, error) {
	token := strings.TrimSpace(req.Token)
	switch {
	case token == "" && req.UserID > 0:
		return queue.UserToken(req.UserID), nil
	case token == "":
		return queue.TokenRunAll, nil
	case token == queue.TokenRunAll:
		return token, nil
	}
	if _, ok := queue.ParseUserToken(token); ok {
		return token, nil
	}
	return "", services.Wrap(services.ErrValidation, "api", "jobs", "unknown job token "+strconv.Quote(token), nil)
}

func parseStatuses(raw string) ([]media.Status, error) {
	var out []media.Status
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		status := media.Status(part)
		if !knownStatus(status) {
			return nil, services.Wrap(services.ErrValidation, "api", "list", "unknown status "+strconv.Quote(part), nil)
		}
		out = append(out, status)
	}
	return out, nil
}

func knownStatus(status media.Status) bool {
	switch status {
	case media.StatusCurrent, media.StatusPlanning, media.StatusCompleted,
		media.StatusDropped, media.StatusPaused, media.StatusRepeating:
		return true
	}
	return false
}

