// Package scheduler triggers a single recurring job from a schedule string.
//
// Cron expressions accept an optional seconds field and descriptors
// (@daily, @every 6h). Intervals run at a constant delay. A run that is
// still in progress when the next tick arrives causes that tick to be
// skipped.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mlsub/pkg/logx"
)

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

type Config struct {
	Spec     string
	Timezone string
}

type Scheduler struct {
	mu     sync.Mutex
	parser cron.Parser
	log    logx.Logger

	c      *cron.Cron
	cancel context.CancelFunc
	run    cron.Job
	manual *sync.WaitGroup
	sched  cron.Schedule
	spec   ParsedSpec
	loc    *time.Location
}

func New(log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:    log.With(logx.String("comp", "scheduler")),
	}
}

// Compile validates cfg and returns its schedule and location without
// starting anything.
func (s *Scheduler) Compile(cfg Config) (ParsedSpec, cron.Schedule, *time.Location, error) {
	spec, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return ParsedSpec{}, nil, nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return ParsedSpec{}, nil, nil, err
	}
	if spec.Kind == SpecInterval {
		return spec, cron.Every(spec.Every), loc, nil
	}
	sched, err := s.parser.Parse(spec.Cron)
	if err != nil {
		return ParsedSpec{}, nil, nil, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
	}
	return spec, sched, loc, nil
}

// Start runs job on cfg's schedule until Stop or ctx is done. Starting an
// already running scheduler replaces its schedule.
func (s *Scheduler) Start(ctx context.Context, cfg Config, job Job) error {
	if job == nil {
		return fmt.Errorf("scheduler: job required")
	}
	spec, sched, loc, err := s.Compile(cfg)
	if err != nil {
		return err
	}

	s.Stop(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	// RunNow and scheduled ticks share this wrapper and its
	// skip-if-running guard.
	run := cron.NewChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	).Then(cron.FuncJob(func() {
		if runCtx.Err() != nil {
			return
		}
		job(runCtx)
	}))
	c.Schedule(sched, run)
	c.Start()

	s.c, s.cancel, s.run, s.manual = c, cancel, run, &sync.WaitGroup{}
	s.sched, s.spec, s.loc = sched, spec, loc
	s.log.Info("schedule started",
		logx.String("spec", spec.String()),
		logx.String("kind", spec.Kind.String()),
		logx.String("tz", loc.String()),
		logx.Time("next", sched.Next(time.Now().In(loc))),
	)
	return nil
}

// RunNow triggers the job once outside the schedule. The run is skipped
// when one is already in progress, and Stop waits for it. It reports false
// when the scheduler is not running.
func (s *Scheduler) RunNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return false
	}
	run, wg := s.run, s.manual
	wg.Add(1)
	go func() {
		defer wg.Done()
		run.Run()
	}()
	return true
}

// Stop halts triggering and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel, manual := s.c, s.cancel, s.manual
	s.c, s.cancel, s.run, s.manual, s.sched = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		manual.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("schedule stopped")
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Next returns the first activation after t, or the zero time when stopped.
func (s *Scheduler) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return time.Time{}
	}
	return s.sched.Next(t.In(s.loc))
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// cronLogger adapts logx to cron's logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
