package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"oshirase/internal/aggregator"
	"oshirase/internal/cache"
	"oshirase/internal/config"
	"oshirase/internal/logging"
	"oshirase/internal/queue"
	"oshirase/internal/store"
	"oshirase/internal/worker"
)

type rootFlags struct {
	config     string
	skipCache  bool
	print      bool
	workerMode bool
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime holds the connections one command needs. Fields are nil when the
// command did not ask for them.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
	cache  *cache.Cache
	queue  queue.Queue
}

type needs struct {
	store bool
	cache bool
	queue bool
}

func (c *commandContext) open(ctx context.Context, n needs) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger}

	if n.store {
		st, err := store.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		rt.store = st
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
	}
	if n.cache {
		ch, err := cache.Open(cfg, logger)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.cache = ch
	}
	if n.queue {
		q, err := queue.Open(ctx, cfg)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.queue = q
	}
	return rt, nil
}

func (c *commandContext) withRuntime(cmd *cobra.Command, n needs, fn func(*runtime) error) error {
	rt, err := c.open(cmd.Context(), n)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(cmd.Context())) }()
	return fn(rt)
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.queue != nil {
		errs = append(errs, rt.queue.Close())
	}
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close(ctx))
	}
	return errors.Join(errs...)
}

func (rt *runtime) aggregator() (*aggregator.Aggregator, error) {
	return aggregator.FromConfig(rt.cfg, rt.store, rt.cache, rt.logger)
}

func (rt *runtime) worker(bypass bool) (*worker.Worker, error) {
	agg, err := rt.aggregator()
	if err != nil {
		return nil, err
	}
	return worker.New(rt.queue, agg.Runner(bypass), worker.Options{
		RetryTimeout: rt.cfg.RetryTimeout(),
		LockPath:     rt.cfg.Worker.LockPath,
	}, rt.logger)
}

var pipelineNeeds = needs{store: true, cache: true}

var workerNeeds = needs{store: true, cache: true, queue: true}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
