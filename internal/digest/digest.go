// Package digest builds and delivers the end-of-day production summary on
// a cron schedule.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/shopclock/internal/logger"
	"github.com/zulandar/shopclock/internal/notify"
	"github.com/zulandar/shopclock/internal/report"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// maxProcessFields caps the per-process lines in one digest.
const maxProcessFields = 8

// Scheduler fires the daily digest on a cron schedule.
type Scheduler struct {
	db       *gorm.DB
	sender   notify.Sender
	schedule cron.Schedule
	now      func() time.Time
	log      *slog.Logger
}

// Opts configures a Scheduler.
type Opts struct {
	Schedule string // 5-field cron expression
	Sender   notify.Sender
	Logger   *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// New validates the schedule and returns a Scheduler.
func New(gdb *gorm.DB, opts Opts) (*Scheduler, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("digest: sender is required")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("digest: parse schedule %q: %w", opts.Schedule, err)
	}
	s := &Scheduler{db: gdb, sender: opts.Sender, schedule: sched, now: opts.Now, log: opts.Logger}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s, nil
}

// Next returns the next fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is canceled, firing the digest at each scheduled time.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.Fire(ctx); err != nil {
				s.log.Error("digest failed", "error", err)
			}
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now()
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Fire builds today's digest and sends it. Days without pieces or
// activities are skipped.
func (s *Scheduler) Fire(ctx context.Context) error {
	msg, err := Build(ctx, s.db, s.now())
	if err != nil {
		return err
	}
	if msg == nil {
		s.log.Info("digest skipped, no production today")
		return nil
	}
	if err := s.sender.Send(ctx, *msg); err != nil {
		return fmt.Errorf("digest: send: %w", err)
	}
	s.log.Info("digest sent", "title", msg.Title)
	return nil
}

// Build assembles the digest for the calendar day containing now. It
// returns nil when nothing happened that day.
func Build(ctx context.Context, gdb *gorm.DB, now time.Time) (*notify.Message, error) {
	r := report.Day(now)
	ov, err := report.BuildOverview(ctx, gdb, r)
	if err != nil {
		return nil, fmt.Errorf("digest: overview: %w", err)
	}
	var started int64
	for _, n := range ov.Activities {
		started += n
	}
	if ov.Pieces == 0 && started == 0 {
		return nil, nil
	}
	pr, err := report.ProcessAnalysis(ctx, gdb, r)
	if err != nil {
		return nil, fmt.Errorf("digest: processes: %w", err)
	}
	msg := Format(ov, pr)
	return &msg, nil
}

// Format renders an overview and process report as a notification.
func Format(ov *report.Overview, pr *report.ProcessReport) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%d pieces by %d operators across %d processes.\n", ov.Pieces, ov.Operators, ov.Processes)
	if ov.MeanTPUMin > 0 {
		fmt.Fprintf(&b, "Mean TPU %.1f min, %.1f pieces/hour.\n", ov.MeanTPUMin, ov.PiecesPerHour)
	}
	if ov.Fastest != nil {
		fmt.Fprintf(&b, "Fastest: %s (%.1f min).\n", ov.Fastest.Name, ov.Fastest.MeanTPUMin)
	}
	if ov.Discarded > 0 {
		fmt.Fprintf(&b, "%d piece durations discarded as non-positive.\n", ov.Discarded)
	}

	msg := notify.Message{
		Title:    fmt.Sprintf("Production digest %s", ov.Range.From.Format("2006-01-02")),
		Body:     strings.TrimSpace(b.String()),
		Severity: notify.SeverityInfo,
	}
	if pr == nil {
		return msg
	}
	for i, p := range pr.Processes {
		if i == maxProcessFields {
			msg.Fields = append(msg.Fields, notify.Field{
				Name:  "Other",
				Value: fmt.Sprintf("%d more processes", len(pr.Processes)-i),
			})
			break
		}
		msg.Fields = append(msg.Fields, notify.Field{
			Name:  p.Name,
			Value: fmt.Sprintf("%d pcs, %.1f min/pc", p.Pieces, p.MeanTPUMin),
			Short: true,
		})
	}
	return msg
}
