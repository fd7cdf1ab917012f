package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/logging"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/sources"
)

// Name identifies the source in logs and cache keys.
const Name = "anilist"

const viewerQuery = `query { Viewer { id name } }`

const userQuery = `query ($userId: Int) { User(id: $userId) { id name } }`

const listsQuery = `query ($userId: Int, $statuses: [MediaListStatus]) {
  anime: MediaListCollection(userId: $userId, type: ANIME, status_in: $statuses) { ...collection }
  manga: MediaListCollection(userId: $userId, type: MANGA, status_in: $statuses) { ...collection }
}
fragment collection on MediaListCollection {
  lists {
    name
    status
    entries {
      status
      score
      progress
      media {
        id
        type
        format
        season
        seasonYear
        episodes
        chapters
        title { romaji english }
        coverImage { large }
      }
    }
  }
}`

// Result is one user's lists together with the owner.
type Result struct {
	User  media.User  `json:"user"`
	Lists media.Lists `json:"lists"`
}

// Client queries the AniList GraphQL API.
type Client struct {
	url        string
	token      string
	statuses   []string
	userID     int64
	listTTL    time.Duration
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger
}

var _ sources.Extractor[Result] = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCache stores fetched lists for the configured list TTL.
func WithCache(cache *cache.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// New creates an AniList client. userID is the default list owner; zero means
// the viewer the access token belongs to.
func New(cfg config.AniList, userID int64, logger *slog.Logger, opts ...Option) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "extract", Name, "anilist url required", nil)
	}
	if len(cfg.Statuses) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "extract", Name, "at least one list status required", nil)
	}
	client := &Client{
		url:        url,
		token:      strings.TrimSpace(cfg.AccessToken),
		statuses:   append([]string(nil), cfg.Statuses...),
		userID:     userID,
		listTTL:    time.Duration(cfg.ListTTL) * time.Second,
		httpClient: &http.Client{Timeout: sources.Timeout(cfg.RequestTimeout)},
		logger:     logging.NewComponentLogger(logger, "anilist"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name implements sources.Extractor.
func (c *Client) Name() string { return Name }

// Extract returns the lists of opts.UserID, the configured user, or the
// token's viewer, in that order of preference.
func (c *Client) Extract(ctx context.Context, opts sources.Options) (Result, error) {
	userID := opts.UserID
	if userID == 0 {
		userID = c.userID
	}
	if userID == 0 && c.token == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "extract", Name,
			"access token required to resolve the viewer (set ANILIST_ACCESS_TOKEN or aggregator.user_id)", nil)
	}

	owner := "viewer"
	if userID != 0 {
		owner = strconv.FormatInt(userID, 10)
	}
	key := cache.Key(Name, "lists", owner)
	if cached, ok := cache.Get[Result](ctx, c.cache, key, opts.Bypass); ok {
		c.logger.Debug("lists served from cache", logging.String(logging.FieldCacheKey, key))
		return cached, nil
	}

	user, err := c.User(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	lists, err := c.Lists(ctx, user.ID)
	if err != nil {
		return Result{}, err
	}
	result := Result{User: user, Lists: lists}
	c.logger.Info("lists fetched",
		logging.Int64("user_id", user.ID),
		logging.Int("anime", len(lists.Anime)),
		logging.Int("manga", len(lists.Manga)),
	)
	cache.SetExpire(ctx, c.cache, key, result, c.listTTL, opts.Bypass)
	return result, nil
}

// User returns the user with id, or the token's viewer when id is zero.
func (c *Client) User(ctx context.Context, id int64) (media.User, error) {
	var payload struct {
		Viewer *userPayload `json:"Viewer"`
		User   *userPayload `json:"User"`
	}
	if id == 0 {
		if err := c.query(ctx, viewerQuery, nil, &payload); err != nil {
			return media.User{}, err
		}
	} else {
		if err := c.query(ctx, userQuery, map[string]any{"userId": id}, &payload); err != nil {
			return media.User{}, err
		}
	}
	found := payload.Viewer
	if found == nil {
		found = payload.User
	}
	if found == nil || found.ID == 0 {
		return media.User{}, services.Wrap(services.ErrNotFound, "extract", Name, "user not found", nil)
	}
	return media.User{ID: found.ID, Name: found.Name}, nil
}

// Lists returns both media lists for userID filtered to the configured statuses.
func (c *Client) Lists(ctx context.Context, userID int64) (media.Lists, error) {
	var payload struct {
		Anime *collectionPayload `json:"anime"`
		Manga *collectionPayload `json:"manga"`
	}
	vars := map[string]any{"userId": userID, "statuses": c.statuses}
	if err := c.query(ctx, listsQuery, vars, &payload); err != nil {
		return media.Lists{}, err
	}
	return media.Lists{
		Anime: payload.Anime.flatten(media.KindAnime),
		Manga: payload.Manga.flatten(media.KindManga),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode anilist query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	raw, err := sources.Do(c.httpClient, req, Name)
	if err != nil {
		return err
	}
	var resp graphQLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return services.Wrap(services.ErrTransient, "extract", Name, "decode anilist response", err)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		marker := services.ErrTransient
		if first.Status == http.StatusUnauthorized || first.Status == http.StatusForbidden {
			marker = services.ErrConfiguration
		}
		return services.Wrap(marker, "extract", Name, fmt.Sprintf("graphql error (%d more)", len(resp.Errors)-1), errors.New(first.Message))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return services.Wrap(services.ErrTransient, "extract", Name, "empty graphql data", nil)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return services.Wrap(services.ErrTransient, "extract", Name, "decode anilist data", err)
	}
	return nil
}
