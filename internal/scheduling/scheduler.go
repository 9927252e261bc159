// Package scheduling triggers async handlers on cron-style periodic schedules
// and derives cron expressions from millisecond intervals.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ai-dev-platform/analytics/internal/logging"
)

// Handler is invoked on every schedule tick.
type Handler func(ctx context.Context) error

// Options configures one scheduled entry.
type Options struct {
	// Expression is a six-field cron expression (seconds granularity).
	Expression string
	// RunOnInit additionally fires the handler once immediately,
	// fire-and-forget, without blocking Schedule.
	RunOnInit bool
	// Timezone is an IANA location name for the cron clock. Empty or invalid
	// falls back to the local clock (invalid is logged).
	Timezone string
}

// Handle controls one scheduled entry.
type Handle interface {
	// Stop halts future triggers. It does not cancel an in-flight invocation.
	Stop()
}

// Scheduler runs handlers on cron schedules. Every invocation is wrapped so a
// returned error or panic is logged and never terminates future ticks.
type Scheduler struct {
	logger logging.Logger
}

// New returns a Scheduler that logs handler failures through logger.
func New(logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Scheduler{logger: logger}
}

type cronHandle struct {
	c *cron.Cron
}

func (h *cronHandle) Stop() { h.c.Stop() }

// Schedule registers handler under label on the given cron expression and
// starts the trigger loop. Returns an error only for an unparseable
// expression; handler failures at runtime are logged, not returned.
func (s *Scheduler) Schedule(label string, handler Handler, opts Options) (Handle, error) {
	cronOpts := []cron.Option{cron.WithSeconds()}
	if opts.Timezone != "" {
		loc, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			s.logger.Warn("invalid timezone, using local clock", "label", label, "timezone", opts.Timezone, "error", err)
		} else {
			cronOpts = append(cronOpts, cron.WithLocation(loc))
		}
	}
	c := cron.New(cronOpts...)

	invoke := func() { s.safeInvoke(label, handler) }
	if _, err := c.AddFunc(opts.Expression, invoke); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", label, err)
	}

	if opts.RunOnInit {
		go invoke()
	}
	c.Start()
	return &cronHandle{c: c}, nil
}

// safeInvoke shields the scheduling loop from handler errors and panics.
func (s *Scheduler) safeInvoke(label string, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled handler panicked", "label", label, "panic", r)
		}
	}()
	if err := handler(context.Background()); err != nil {
		s.logger.Error("scheduled handler failed", "label", label, "error", err)
	}
}
