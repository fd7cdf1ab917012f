package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"oshirase/internal/logging"
	"oshirase/internal/queue"
	"oshirase/internal/services"
)

// ErrAlreadyRunning is returned when another worker holds the lock file.
var ErrAlreadyRunning = errors.New("another oshirase worker is already running")

const defaultRetryTimeout = 10 * time.Second

// State names the step of the job loop the worker is in.
type State string

const (
	StateStopped           State = "stopped"
	StateWaitForConnection State = "wait_for_connection"
	StateClaimJob          State = "claim_job"
	StateRunPipeline       State = "run_pipeline"
	StateIdleTimeout       State = "idle_timeout"
	StateClearFailed       State = "clear_failed_marker"
)

// Runner executes one pipeline run. userID zero means the configured user.
type Runner interface {
	Run(ctx context.Context, userID int64) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, userID int64) error

func (f RunnerFunc) Run(ctx context.Context, userID int64) error { return f(ctx, userID) }

// Options configures a Worker.
type Options struct {
	// RetryTimeout bounds the connection check and the blocking claim, and is
	// the pause after a failure.
	RetryTimeout time.Duration
	// LockPath is the flock file that keeps one worker per host. Empty disables locking.
	LockPath string
	// SkipRecover leaves tokens found in the failed list at startup alone.
	SkipRecover bool
}

// Status is a snapshot of worker activity.
type Status struct {
	Running   bool
	State     State
	LastToken string
	LastError string
	Runs      int
	Failures  int
}

// Worker consumes job tokens from a queue and runs the pipeline for each.
type Worker struct {
	queue        queue.Queue
	runner       Runner
	logger       *slog.Logger
	retryTimeout time.Duration
	skipRecover  bool

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	mu        sync.RWMutex
	state     State
	lastToken string
	lastErr   error
	runs      int
	failures  int
}

// New constructs a worker.
func New(q queue.Queue, runner Runner, opts Options, logger *slog.Logger) (*Worker, error) {
	if q == nil || runner == nil {
		return nil, errors.New("worker requires a queue and a runner")
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = defaultRetryTimeout
	}
	w := &Worker{
		queue:        q,
		runner:       runner,
		logger:       logging.NewComponentLogger(logger, "worker"),
		retryTimeout: opts.RetryTimeout,
		skipRecover:  opts.SkipRecover,
		lockPath:     opts.LockPath,
		state:        StateStopped,
	}
	if opts.LockPath != "" {
		w.lock = flock.New(opts.LockPath)
	}
	return w, nil
}

// Run loops until ctx is cancelled. Queue and pipeline failures are logged and
// never end the loop; the only errors returned come from acquiring the lock.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}
	defer w.running.Store(false)

	if w.lock != nil {
		ok, err := w.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, w.lockPath)
		}
		defer func() {
			if err := w.lock.Unlock(); err != nil {
				w.logger.Warn("failed to release worker lock",
					logging.Error(err),
					logging.String(logging.FieldEventType, "worker_unlock_failed"),
					logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start fails"),
				)
			}
		}()
	}

	w.logger.Info("worker started",
		logging.String("lock", w.lockPath),
		logging.Duration("retry_timeout", w.retryTimeout),
	)
	if !w.skipRecover {
		w.recoverLeftovers(ctx)
	}
	for ctx.Err() == nil {
		w.cycle(ctx)
	}
	w.setState(StateStopped)
	w.logger.Info("worker stopped")
	return nil
}

// Status returns the latest worker information.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	status := Status{
		Running:   w.running.Load(),
		State:     w.state,
		LastToken: w.lastToken,
		Runs:      w.runs,
		Failures:  w.failures,
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	return status
}

// recoverLeftovers requeues tokens a crashed worker claimed but never finished.
func (w *Worker) recoverLeftovers(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, w.retryTimeout)
	defer cancel()
	if err := w.queue.Ping(pingCtx); err != nil {
		return
	}
	n, err := w.queue.Recover(ctx)
	if err != nil {
		logging.WarnWithContext(w.logger, "failed to requeue leftover jobs", "worker_recover_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs claimed before the last crash stay in the failed list"),
			logging.String(logging.FieldErrorHint, "run 'oshirase queue recover'"),
		)
		return
	}
	if n > 0 {
		w.logger.Info("requeued jobs left by a previous worker", logging.Int("count", n))
	}
}

// cycle performs one pass of the state machine.
func (w *Worker) cycle(ctx context.Context) {
	w.setState(StateWaitForConnection)
	pingCtx, cancel := context.WithTimeout(ctx, w.retryTimeout)
	err := w.queue.Ping(pingCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.recordError(err)
		logging.WarnWithContext(w.logger, "queue unreachable", "worker_connect_failed",
			logging.Error(err),
			logging.Duration("retry_in", w.retryTimeout),
			logging.String(logging.FieldImpact, "jobs wait until the queue is reachable"),
			logging.String(logging.FieldErrorHint, "check the redis uri or queue database path"),
		)
		w.pause(ctx)
		return
	}

	w.setState(StateClaimJob)
	token, ok, err := w.queue.Claim(ctx, w.retryTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.recordError(err)
		logging.ErrorWithContext(w.logger, "failed to claim job", "worker_claim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue connectivity"),
		)
		w.pause(ctx)
		return
	}

	if !ok {
		w.setState(StateIdleTimeout)
		w.logger.Debug("no job before timeout")
	} else if retry := w.handle(ctx, token); retry {
		return
	}

	w.setState(StateClearFailed)
	if err := w.queue.ClearFailed(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(w.logger, "failed to clear failed list", "worker_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a finished job may be recovered and run again"),
			logging.String(logging.FieldErrorHint, "check queue connectivity"),
		)
	}
}

// handle runs the job named by token and reports whether the token was put
// back for another attempt.
func (w *Worker) handle(ctx context.Context, token string) bool {
	w.mu.Lock()
	w.lastToken = token
	w.mu.Unlock()

	var userID int64
	if token != queue.TokenRunAll {
		id, ok := queue.ParseUserToken(token)
		if !ok {
			w.logger.Debug("ignoring unknown job token", logging.String("token", token))
			return false
		}
		userID = id
	}

	w.setState(StateRunPipeline)
	jobCtx := services.WithJob(ctx, token)
	logger := logging.WithContext(jobCtx, w.logger)
	logger.Info("running pipeline", logging.Int64("user_id", userID))
	started := time.Now()

	err := w.runner.Run(jobCtx, userID)
	w.mu.Lock()
	w.runs++
	if err != nil {
		w.failures++
		w.lastErr = err
	}
	w.mu.Unlock()

	if err == nil {
		logger.Info("pipeline finished", logging.Duration("elapsed", time.Since(started)))
		return false
	}
	if ctx.Err() != nil || !services.Retryable(err) {
		logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "fix the configuration or input and enqueue again"),
		)
		return false
	}

	logging.WarnWithContext(logger, "pipeline failed; job will be retried", "pipeline_retry",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.Duration("retry_in", w.retryTimeout),
		logging.String(logging.FieldImpact, "lists stay as of the previous successful run"),
	)
	if _, recoverErr := w.queue.Recover(ctx); recoverErr != nil {
		logging.WarnWithContext(logger, "failed to requeue job", "worker_recover_failed",
			logging.Error(recoverErr),
			logging.String(logging.FieldImpact, "job left in the failed list"),
			logging.String(logging.FieldErrorHint, "run 'oshirase queue recover'"),
		)
	}
	w.pause(ctx)
	return true
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.retryTimeout):
	}
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}
