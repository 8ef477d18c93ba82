package app

import (
	"context"
	"time"

	"mlsub/internal/config"
	"mlsub/internal/scheduler"
	logx "mlsub/pkg/logx"
	"mlsub/pkg/systemd"
)

const stopTimeout = 30 * time.Second

// Daemon runs Fetch on the configured schedule until ctx is done. When m is
// non-nil its file is watched; a valid new config replaces the active one
// and a changed schedule is re-armed. An invalid schedule on reload keeps
// the previous one.
func (a *App) Daemon(ctx context.Context, m *config.Manager) error {
	log := a.log.With(logx.String("op", "daemon"))
	sched := scheduler.New(a.log)

	job := func(ctx context.Context) {
		res, err := a.Fetch(ctx, FetchOptions{})
		if err != nil {
			log.Error("scheduled run failed", logx.String("run_id", res.RunID), logx.Err(err))
			return
		}
		log.Info("scheduled run finished",
			logx.String("run_id", res.RunID),
			logx.Int("fetched", res.Fetched),
			logx.Int("notified", res.Notified),
		)
	}

	cfg := a.Config()
	if err := sched.Start(ctx, mapSchedule(cfg), job); err != nil {
		return err
	}
	defer func() {
		systemd.Stopping(log)
		sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		sched.Stop(sctx)
		log.Info("daemon stopped")
	}()

	var updates chan *config.Config
	if m != nil && m.Path() != "" {
		updates = m.Subscribe(1)
		defer m.Unsubscribe(updates)
		m.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })
		go func() {
			if err := m.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn("config watch stopped", logx.Err(err))
			}
		}()
	}

	if cfg.Schedule.RunOnStart {
		sched.RunNow()
	}
	go systemd.Watchdog(ctx, log)

	systemd.Ready(log)
	systemd.Status(log, "scheduled: "+cfg.Schedule.Spec)
	log.Info("daemon started",
		logx.String("schedule", cfg.Schedule.Spec),
		logx.Time("next", sched.Next(a.now())),
		logx.Bool("watch", updates != nil),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			a.reload(ctx, sched, next, job, log)
		}
	}
}

func (a *App) reload(ctx context.Context, sched *scheduler.Scheduler, next *config.Config, job scheduler.Job, log logx.Logger) {
	systemd.Reloading(log)
	defer systemd.Ready(log)

	prev := a.Config()
	if a.overrides != nil {
		a.overrides(next)
	}
	if err := a.SetConfig(next); err != nil {
		log.Warn("reloaded config rejected", logx.Err(err))
		return
	}
	if prev.Schedule.Spec == next.Schedule.Spec && prev.Schedule.Timezone == next.Schedule.Timezone {
		log.Info("config applied")
		return
	}
	if err := sched.Start(ctx, mapSchedule(next), job); err != nil {
		log.Error("new schedule rejected, keeping previous", logx.String("schedule", next.Schedule.Spec), logx.Err(err))
		return
	}
	systemd.Status(log, "scheduled: "+next.Schedule.Spec)
	log.Info("schedule updated",
		logx.String("schedule", next.Schedule.Spec),
		logx.Time("next", sched.Next(a.now())),
	)
}
