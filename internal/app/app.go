// Package app wires the diary bot together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"diarybot/internal/bot"
	"diarybot/internal/cache"
	"diarybot/internal/config"
	"diarybot/internal/diary"
	"diarybot/internal/digest"
	"diarybot/internal/eventbus"
	"diarybot/internal/extract"
	"diarybot/internal/homework"
	"diarybot/internal/observability/debug"
	"diarybot/internal/portal"
	"diarybot/internal/refresh"
	"diarybot/internal/runtime/supervisor"
	"diarybot/internal/storage"
	"diarybot/internal/subscription"
	"diarybot/internal/task/engine"
	"diarybot/internal/task/scheduler"
	kit "diarybot/internal/transport"
	telegram "diarybot/internal/transport/telegram/adapter"
	"diarybot/internal/transport/telegram/router"
	"diarybot/pkg/logx"
	"diarybot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	root  logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service

	coord    *refresh.Coordinator
	cache    *cache.Cache
	cooldown *refresh.Cooldown
	homework *homework.Tracker
	subs     *subscription.Store
	diary    *diary.Service
	digest   atomic.Pointer[digest.Digest]

	settings atomic.Pointer[config.Settings]

	cmdm    *router.CommandManager
	updates chan kit.Update

	debug *debug.Server // nil unless enabled
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("info")
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: set.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg, set), ad)
	log := root.With(logx.String("comp", "app"))

	sc := mapStorageConfig(cfg, set)
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	eng := engine.New(mapTaskEngineConfig(cfg), root, bus)
	sched := scheduler.New(scheduler.Config{Timezone: set.Location.String()}, eng, root)

	factory := portal.NewFactory(portal.Options{
		UserAgent:      cfg.Portal.UserAgent,
		RequestTimeout: set.RequestTimeout,
		CookieFile:     cfg.Portal.CookieFile,
	}, root.With(logx.String("comp", "portal")))
	x := extract.New(extract.Config{
		BaseURL:    cfg.Portal.BaseURL,
		SettleList: set.SettleList,
		SettlePage: set.SettlePage,
	}, root.With(logx.String("comp", "extract")))
	coord := refresh.New(refresh.Config{Timeout: set.RefreshTimeout, IdleTimeout: set.IdleTimeout}, factory, x, nil, eng, root)

	cc := cache.New(cache.Config{TTL: set.CacheTTL}, coord, store, root, bus)
	cooldown := refresh.NewCooldown(set.Cooldown)
	hw := homework.New(store, set.Location, root)
	subs := subscription.New(store, root)
	dsvc := diary.New(diary.Deps{
		Cache:         cc,
		Cooldown:      cooldown,
		Homework:      hw,
		Subscriptions: subs,
		Location:      set.Location,
		Log:           root,
	})

	cmdm := router.NewCommandManager(root, ad, router.Options{
		Admins:    cfg.Telegram.AdminUserIDs,
		ErrorText: diary.UserMessage,
	})
	b := bot.New(dsvc)
	cmdm.SetRegistry(b.Commands(), b.Callbacks())

	a := &App{
		cfgm:     cfgm,
		log:      log,
		root:     root,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   eng,
		sched:    sched,
		coord:    coord,
		cache:    cc,
		cooldown: cooldown,
		homework: hw,
		subs:     subs,
		diary:    dsvc,
		cmdm:     cmdm,
		updates:  make(chan kit.Update, 256),
	}
	a.settings.Store(&set)
	if cfg.Debug.Enabled {
		a.debug = debug.New(debug.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}, a.Status, root)
	}
	if err := a.registerJobs(cfg, set); err != nil {
		return nil, err
	}
	return a, nil
}

// Done is closed when the app supervisor is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.root)

	a.restore(a.sup.Context())

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.cmdm.PublishMenu(a.sup.Context()); err != nil {
		a.log.Warn("menu publish failed", logx.Err(err))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
			}
		}
	})

	if a.debug != nil {
		if err := a.debug.Start(a.sup.Context()); err != nil {
			a.log.Warn("debug server not started", logx.Err(err))
		}
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	a.log.Info("app started")
	return nil
}

// restore loads the persisted snapshots in parallel. A snapshot that
// cannot be read leaves its component empty.
func (a *App) restore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	loaders := map[string]func(context.Context) error{
		cache.SnapshotName:        a.cache.Load,
		homework.SnapshotName:     a.homework.Load,
		subscription.SnapshotName: a.subs.Load,
	}
	for name, load := range loaders {
		name, load := name, load
		g.Go(func() error {
			if err := load(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Warn("snapshot restore incomplete", logx.Err(err))
	}
	a.log.Info("state restored",
		logx.Int("cached_days", a.cache.Len()),
		logx.Int("subscriptions", len(a.subs.List())),
	)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("portal", 2*time.Second, a.coord.Close)
	if a.debug != nil {
		step("debug", 2*time.Second, a.debug.Stop)
	}
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
