// Package cronjobs runs the engine's periodic maintenance: the reminder
// firing loop, the digest sweep, horizon refresh, and the purge.
package cronjobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/pkg/logx"
)

type job struct {
	name string
	spec string
	run  func(ctx context.Context)
}

type Runner struct {
	log logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	jobs []job

	// ctx is the lifetime handed to job runs; set by Start.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{log: log}
}

// Add registers a job under a cron spec. Specs accept the optional
// seconds field and @every descriptors. Registration after Start takes
// effect immediately.
func (r *Runner) Add(name, spec string, fn func(ctx context.Context)) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("cronjobs: bad spec %q for %s: %w", spec, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	j := job{name: name, spec: spec, run: fn}
	r.jobs = append(r.jobs, j)
	if r.c != nil {
		r.addLocked(j)
	}
	return nil
}

// AddInterval registers a fixed-interval job.
func (r *Runner) AddInterval(name string, every time.Duration, fn func(ctx context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("cronjobs: non-positive interval for %s", name)
	}
	return r.Add(name, "@every "+every.String(), fn)
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r.c = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{r.log}), cron.SkipIfStillRunning(cronLogger{r.log})),
	)
	for _, j := range r.jobs {
		r.addLocked(j)
	}
	r.c.Start()
	r.log.Info("maintenance jobs started", logx.Int("jobs", len(r.jobs)))
}

func (r *Runner) addLocked(j job) {
	run := j.run
	name := j.name
	ctx := r.ctx
	if _, err := r.c.AddFunc(j.spec, func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		run(ctx)
		r.log.Debug("job finished", logx.String("job", name), logx.Duration("took", time.Since(start)))
	}); err != nil {
		r.log.Error("job registration failed", logx.String("job", name), logx.Err(err))
	}
}

// Stop halts triggering and waits for in-flight runs, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	cancel := r.cancel
	r.c = nil
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	r.log.Info("maintenance jobs stopped")
}

// cronLogger adapts logx to the cron logging interface.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug(msg, logx.Any("detail", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}
