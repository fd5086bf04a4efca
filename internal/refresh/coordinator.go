// Package refresh runs schedule fetches against the portal through one
// shared, lazily created session.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diarybot/internal/classify"
	"diarybot/internal/extract"
	"diarybot/internal/normalize"
	"diarybot/internal/portal"
	"diarybot/internal/schedule"
	"diarybot/internal/task/engine"
	"diarybot/pkg/logx"
)

const (
	DefaultTimeout     = 20 * time.Second
	DefaultIdleTimeout = 10 * time.Minute
)

type Config struct {
	Timeout     time.Duration
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Runner executes a task once and returns its error. *engine.Service
// satisfies it.
type Runner interface {
	Do(ctx context.Context, t engine.Task) error
}

// Coordinator owns the portal session. Only one fetch uses the session at
// a time; a failed or timed out fetch discards it so the next one starts
// clean.
type Coordinator struct {
	cfg        Config
	factory    portal.Factory
	extractor  *extract.Extractor
	classifier *classify.Classifier
	runner     Runner
	log        logx.Logger

	sem      chan struct{}
	sess     portal.Session
	lastUsed time.Time
}

// New builds a Coordinator. runner may be nil, in which case fetches run
// on the calling goroutine.
func New(cfg Config, factory portal.Factory, x *extract.Extractor, c *classify.Classifier, runner Runner, log logx.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if c == nil {
		c = classify.New()
	}
	return &Coordinator{
		cfg:        cfg,
		factory:    factory,
		extractor:  x,
		classifier: c,
		runner:     runner,
		log:        log.With(logx.String("comp", "refresh")),
		sem:        make(chan struct{}, 1),
	}
}

// Refresh fetches and normalizes the schedule for dateKey within the
// configured timeout.
func (c *Coordinator) Refresh(ctx context.Context, dateKey string) (schedule.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var res schedule.Result
	run := func(rctx context.Context) error {
		r, err := c.run(rctx, dateKey)
		res = r
		return err
	}

	start := c.cfg.Now()
	var err error
	if c.runner != nil {
		err = c.runner.Do(tctx, engine.Task{Name: "refresh:" + dateKey, Timeout: c.cfg.Timeout, Run: run})
	} else {
		err = run(tctx)
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", schedule.ErrTimeout, c.cfg.Timeout)
		}
		return schedule.Result{}, err
	}
	c.log.Info("schedule fetched",
		logx.String("date", dateKey),
		logx.String("kind", string(res.Kind)),
		logx.Int("lessons", len(res.Lessons)),
		logx.Duration("took", c.cfg.Now().Sub(start)),
	)
	return res, nil
}

func (c *Coordinator) run(ctx context.Context, dateKey string) (schedule.Result, error) {
	if err := c.acquire(ctx); err != nil {
		return schedule.Result{}, err
	}
	defer c.release()

	sess, err := c.sessionLocked(ctx)
	if err != nil {
		return schedule.Result{}, err
	}
	out, err := c.extractor.Extract(ctx, sess, dateKey)
	c.lastUsed = c.cfg.Now()
	if err != nil {
		c.discardLocked("fetch failed")
		return schedule.Result{}, err
	}
	return normalize.Build(c.classifier, out), nil
}

func (c *Coordinator) sessionLocked(ctx context.Context) (portal.Session, error) {
	if c.sess != nil {
		return c.sess, nil
	}
	s, err := c.factory(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, schedule.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open session: %w", schedule.ErrExtractionFailed, err)
	}
	c.sess = s
	c.lastUsed = c.cfg.Now()
	c.log.Debug("session opened")
	return s, nil
}

func (c *Coordinator) discardLocked(reason string) {
	if c.sess == nil {
		return
	}
	if err := c.sess.Close(); err != nil {
		c.log.Warn("session close failed", logx.Err(err))
	}
	c.sess = nil
	c.log.Debug("session discarded", logx.String("reason", reason))
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.sem }

// ReapIdle closes the session when it has been unused for the idle
// timeout. It does not wait for a running fetch.
func (c *Coordinator) ReapIdle(now time.Time) bool {
	select {
	case c.sem <- struct{}{}:
	default:
		return false
	}
	defer c.release()
	if c.sess == nil || now.Sub(c.lastUsed) < c.cfg.IdleTimeout {
		return false
	}
	c.discardLocked("idle")
	return true
}

// Active reports whether a session is currently open.
func (c *Coordinator) Active() bool {
	select {
	case c.sem <- struct{}{}:
		defer c.release()
		return c.sess != nil
	default:
		return true
	}
}

// Close waits for a running fetch and closes the session.
func (c *Coordinator) Close(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	c.discardLocked("shutdown")
	return nil
}
