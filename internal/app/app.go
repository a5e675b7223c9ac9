package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentcron/internal/api"
	"agentcron/internal/config"
	"agentcron/internal/eventbus"
	rtsup "agentcron/internal/runtime/supervisor"
	"agentcron/internal/session"
	"agentcron/internal/storage"
	"agentcron/internal/task"
	"agentcron/internal/task/scheduler"
	logx "agentcron/pkg/logx"
	"agentcron/pkg/systemd"
)

// StopReason is logged when the daemon shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// App owns every long-lived component of the daemon.
type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	kv   storage.KV

	tasks   *task.Store
	runner  *session.Runner
	trigger *scheduler.Trigger
	reg     *scheduler.Registry
	svc     *scheduler.Service
	api     *api.Server

	notify bool
}

type Option func(*options)

type options struct {
	chat session.Chatter
}

// WithChatter replaces the Ollama client built from session config.
func WithChatter(c session.Chatter) Option {
	return func(o *options) { o.chat = c }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.Comp("app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	sesCfg, err := mapSessionConfig(cfg)
	if err != nil {
		return nil, err
	}

	chat := o.chat
	if chat == nil {
		client, err := session.NewOllamaClient(sesCfg)
		if err != nil {
			return nil, err
		}
		chat = client
	}

	kv, err := storage.Open(sc, log.With(logx.Comp("storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	bus := eventbus.New()
	sinks := []eventbus.Sink{eventbus.Local(bus), eventbus.Global(bus)}

	runner := session.NewRunner(sesCfg, kv, chat, log.With(logx.Comp("session")), sinks...)
	tasks := task.NewStore(kv, log.With(logx.Comp("task")), sinks...)
	schedLog := log.With(logx.Comp("scheduler"))
	trigger := scheduler.NewTrigger(tasks, runner, schedCfg.RunTimeout, schedLog)
	reg := scheduler.NewRegistry(schedCfg, tasks, trigger, schedLog)
	svc := scheduler.NewService(tasks, reg, schedLog)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		kv:      kv,
		tasks:   tasks,
		runner:  runner,
		trigger: trigger,
		reg:     reg,
		svc:     svc,
		notify:  cfg.Systemd.Notify,
	}
	a.api = api.New(apiCfg, svc, bus, log.With(logx.Comp("api")),
		api.WithStatus("app", a.supervisorSnapshot),
	)
	return a, nil
}

// Service exposes the task operations the API and MCP tool share.
func (a *App) Service() *scheduler.Service { return a.svc }

// APIAddr returns the bound API address, empty when the API is off.
func (a *App) APIAddr() string { return a.api.Addr() }

func (a *App) supervisorSnapshot() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateReload(cfg)
	})

	if err := a.reg.Init(a.sup.Context()); err != nil {
		return err
	}
	if err := a.api.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.log.Enabled(logx.LevelDebug) {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					if e.Type == eventbus.GlobalEventType {
						continue
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if a.notify {
		if _, err := systemd.Ready(); err != nil {
			a.log.Warn("systemd ready notify failed", logx.Err(err))
		}
		_, _ = systemd.Status("scheduling tasks")
		if iv := systemd.WatchdogInterval(); iv > 0 {
			a.log.Info("systemd watchdog enabled", logx.Duration("interval", iv))
			a.sup.Go("systemd.watchdog", func(c context.Context) error {
				return systemd.Watchdog(c, iv)
			})
		}
	}

	a.log.Info("app started", logx.String("api", a.api.Addr()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// Coalesce bursts: keep only the latest config in the channel.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}
		ch := config.Diff(lastApplied, newCfg)
		lastApplied = newCfg
		a.apply(ctx, newCfg, ch)
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config, ch config.Change) {
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}

	if ch.Has("logging") {
		a.logs.Apply(mapLogConfig(cfg))
	}
	if ch.Has("scheduler") {
		sc, err := mapSchedulerConfig(cfg)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.trigger.SetTimeout(sc.RunTimeout)
			if err := a.reg.Apply(ctx, sc); err != nil {
				a.log.Error("scheduler reload failed", logx.Err(err))
			}
		}
	}
	if ch.Has("http") {
		ac, err := mapAPIConfig(cfg)
		if err != nil {
			a.log.Warn("invalid http config; keeping previous", logx.Err(err))
		} else if err := a.api.Reconfigure(ctx, ac); err != nil {
			a.log.Error("api reload failed", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.notify {
		_, _ = systemd.Stopping()
	}

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// API first so no new runs arrive; the registry then waits for in-flight runs.
	a.step(ctx, "api", 2*time.Second, a.api.Stop)
	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.reg.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.kv.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline, so
// one component cannot stall the whole stop. fn must honor its context.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

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
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		// Leak signal: report when the step eventually finishes.
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
