package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the pruner once a day at 03:30.
const DefaultPruneSchedule = "30 3 * * *"

// NewCronParser returns the parser used for prune schedules: standard
// 5-field cron expressions plus descriptors such as @daily.
func NewCronParser() cron.Parser {
	return cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
}

// ValidateSchedule checks a prune schedule expression.
func ValidateSchedule(expression string) error {
	_, err := NewCronParser().Parse(expression)
	return err
}

// Pruner deletes journal entries older than the retention period on a cron
// schedule.
type Pruner struct {
	journal   *Journal
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPruner creates a pruner. expression is a cron schedule; retention is
// how long entries are kept.
func NewPruner(j *Journal, expression string, retention time.Duration, logger *slog.Logger) (*Pruner, error) {
	schedule, err := NewCronParser().Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse prune schedule %q: %w", expression, err)
	}
	return &Pruner{
		journal:   j,
		schedule:  schedule,
		retention: retention,
		logger:    logger.With(slog.String("component", "journal_pruner")),
		now:       time.Now,
	}, nil
}

// Run prunes on every scheduled tick until ctx is cancelled or Shutdown is
// called. It blocks and should be run in a goroutine.
func (p *Pruner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()
	defer close(done)

	p.logger.Info("journal pruner started", slog.Duration("retention", p.retention))

	for {
		next := p.schedule.Next(p.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("journal pruner stopping")
			return
		case <-timer.C:
			p.PruneNow()
		}
	}
}

// PruneNow removes entries older than the retention period.
func (p *Pruner) PruneNow() (int, error) {
	cutoff := p.now().Add(-p.retention)
	removed, err := p.journal.PruneBefore(cutoff)
	if err != nil {
		p.logger.Error("journal prune failed", slog.String("error", err.Error()))
		return 0, err
	}
	p.logger.Info("journal pruned",
		slog.Int("removed", removed),
		slog.Time("cutoff", cutoff),
	)
	return removed, nil
}

// Shutdown stops Run and waits for it to return.
func (p *Pruner) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
