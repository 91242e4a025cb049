package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/engage4me/internal/logging"
	"github.com/ibeckermayer/engage4me/internal/scheduler"
)

const (
	jobName        = "engage"
	reloadDebounce = 500 * time.Millisecond
)

// Daemon runs RunOnce on the configured cron schedule until ctx is done.
// Edits to the config file are picked up without a restart.
func (a *App) Daemon(ctx context.Context) error {
	cfg := a.Config()
	log := logging.Component(a.log, "scheduler")

	sched, err := scheduler.New(cfg.Schedule.Timezone, 0, log)
	if err != nil {
		return err
	}
	job := func(ctx context.Context) error {
		_, err := a.RunOnce(ctx)
		return err
	}
	if err := sched.AddJob(jobName, cfg.Schedule.Cron, job); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	sched.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	g.Go(func() error {
		current := cfg.Schedule
		return watchFile(gctx, a.configPath, reloadDebounce, log, func() {
			newCfg, err := a.ReloadConfig()
			if err != nil {
				a.log.Warn().Err(err).Msg("config reload failed, keeping previous config")
				return
			}
			if newCfg.Schedule.Timezone != current.Timezone {
				a.log.Warn().Msg("schedule.timezone changes take effect after a restart")
			}
			if newCfg.Schedule.Cron == current.Cron {
				return
			}
			sched.RemoveJob(jobName)
			if err := sched.AddJob(jobName, newCfg.Schedule.Cron, job); err != nil {
				a.log.Error().Err(err).Msg("invalid schedule, restoring previous one")
				if err := sched.AddJob(jobName, current.Cron, job); err != nil {
					a.log.Error().Err(err).Msg("failed to restore schedule")
				}
				return
			}
			current.Cron = newCfg.Schedule.Cron
		})
	})

	for _, j := range sched.ListJobs() {
		a.log.Info().Str("job", j.Name).Time("next_run", j.NextRun).Msg("daemon started")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchFile calls onChange after path is written, created or replaced,
// coalescing bursts of events within debounce. The parent directory is
// watched so editors that save by rename are seen.
func watchFile(ctx context.Context, path string, debounce time.Duration, log zerolog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
