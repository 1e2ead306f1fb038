// Package scheduler runs the periodic daily report deadline check and
// notifies farm members when a deadline is near or has just passed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/metrics"
	"p9e.in/farmops/utils"
)

// Notifier sends a message to the members of a farm holding one of roles.
type Notifier interface {
	NotifyFarmRoles(ctx context.Context, farmID uuid.UUID, roles []models.Role, msg models.NotificationMessage) (int, error)
}

// Options configure a DeadlineScheduler.
type Options struct {
	// Location is the reference time zone deadlines are read in.
	Location *time.Location
	// Dedup records each fired window so that it fires once per day even
	// when the tick interval is shorter than the window.
	Dedup bool
	// Now overrides the clock.
	Now func() time.Time
}

// DeadlineScheduler checks every enabled report config once per tick.
type DeadlineScheduler struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	loc      *time.Location
	dedup    bool
	now      func() time.Time
}

// Summary describes one tick.
type Summary struct {
	Checked int
	DueSoon int
	Overdue int
	Skipped int
	Failed  int
}

func NewDeadlineScheduler(db *gorm.DB, notifier Notifier, log *zap.Logger, opts Options) *DeadlineScheduler {
	s := &DeadlineScheduler{
		db:       db,
		notifier: notifier,
		log:      log.Named("scheduler"),
		loc:      opts.Location,
		dedup:    opts.Dedup,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Tick evaluates all enabled configs against the current time. A failing
// farm is logged and counted; it never stops the others.
func (s *DeadlineScheduler) Tick(ctx context.Context) (Summary, error) {
	metrics.SchedulerTicks.Inc()
	now := s.now()

	var configs []models.ReportConfig
	err := s.db.WithContext(ctx).
		Where("is_enabled = ? AND deadline_time IS NOT NULL", true).
		Preload("Farm").
		Find(&configs).Error
	if err != nil {
		return Summary{}, fmt.Errorf("load report configs: %w", err)
	}

	var sum Summary
	for i := range configs {
		cfg := &configs[i]
		sum.Checked++

		window, err := s.checkConfig(ctx, cfg, now)
		if err != nil {
			sum.Failed++
			metrics.SchedulerTenantErrors.Inc()
			s.log.Error("❌ deadline check failed",
				zap.String("farm", cfg.FarmID.String()),
				zap.String("config", cfg.ID.String()),
				zap.Error(err))
			continue
		}
		switch window {
		case WindowDueSoon:
			sum.DueSoon++
		case WindowOverdue:
			sum.Overdue++
		case windowAlreadySent:
			sum.Skipped++
		}
	}

	if sum.DueSoon > 0 || sum.Overdue > 0 {
		s.log.Info("⏰ deadline check finished",
			zap.Int("checked", sum.Checked),
			zap.Int("due_soon", sum.DueSoon),
			zap.Int("overdue", sum.Overdue),
			zap.Int("failed", sum.Failed))
	}
	return sum, nil
}

// windowAlreadySent is reported when dedup suppressed a notification.
const windowAlreadySent Window = -1

func (s *DeadlineScheduler) checkConfig(ctx context.Context, cfg *models.ReportConfig, now time.Time) (window Window, err error) {
	var mark *models.ReminderMark
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		// A mark for a notification that never went out would silence the
		// window for the rest of the day.
		if err != nil && mark != nil {
			s.releaseWindow(ctx, mark)
		}
	}()

	if cfg.DeadlineTime == nil {
		return WindowNone, nil
	}
	window, delta := Classify(now, *cfg.DeadlineTime, s.loc)
	if window == WindowNone {
		return WindowNone, nil
	}

	if s.dedup {
		m, err := s.markWindow(ctx, cfg, window, now)
		if err != nil {
			return WindowNone, err
		}
		if m == nil {
			return windowAlreadySent, nil
		}
		mark = m
	}

	msg := s.message(cfg, window)
	sent, err := s.notifier.NotifyFarmRoles(ctx, cfg.FarmID, window.Roles(), msg)
	if err != nil {
		return WindowNone, err
	}
	s.log.Debug("deadline notification sent",
		zap.String("farm", cfg.FarmID.String()),
		zap.Stringer("window", window),
		zap.Duration("delta", delta),
		zap.Int("recipients", sent))
	return window, nil
}

// markWindow records that window fired for cfg on today's reference date.
// It returns nil when the window was already recorded.
func (s *DeadlineScheduler) markWindow(ctx context.Context, cfg *models.ReportConfig, window Window, now time.Time) (*models.ReminderMark, error) {
	mark := &models.ReminderMark{
		ConfigID:   cfg.ID,
		Kind:       window.Kind(),
		WindowDate: models.NewDate(now.In(s.loc)),
	}
	if err := s.db.WithContext(ctx).Create(mark).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("record reminder: %w", err)
	}
	return mark, nil
}

// releaseWindow removes mark so the next tick in the window retries.
func (s *DeadlineScheduler) releaseWindow(ctx context.Context, mark *models.ReminderMark) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Delete(&models.ReminderMark{}, "id = ?", mark.ID).Error
	if err != nil {
		s.log.Error("❌ failed to release reminder mark",
			zap.String("config", mark.ConfigID.String()),
			zap.String("kind", string(mark.Kind)),
			zap.Error(err))
	}
}

func (s *DeadlineScheduler) message(cfg *models.ReportConfig, window Window) models.NotificationMessage {
	data := &models.NotificationData{
		Type:     models.NotificationType(window.Kind()),
		ConfigID: cfg.ID.String(),
	}
	if window == WindowOverdue {
		farmName := cfg.FarmID.String()
		if cfg.Farm != nil && cfg.Farm.Name != "" {
			farmName = cfg.Farm.Name
		}
		return models.NotificationMessage{
			Title:   "Daily report overdue",
			Message: fmt.Sprintf("Alert: Daily Report deadline passed for %s.", farmName),
			Data:    data,
		}
	}
	return models.NotificationMessage{
		Title:   "Daily report due soon",
		Message: fmt.Sprintf("Reminder: Daily Report is due soon (%s).", cfg.DeadlineTime.String()),
		Data:    data,
	}
}

// Runner drives a DeadlineScheduler from a cron schedule.
type Runner struct {
	cron      *cron.Cron
	scheduler *DeadlineScheduler
	log       *zap.Logger
}

// NewRunner registers s under spec, e.g. "@every 1m" or "* * * * *".
func NewRunner(spec string, s *DeadlineScheduler, log *zap.Logger) (*Runner, error) {
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	r := &Runner{cron: c, scheduler: s, log: log.Named("scheduler")}
	if _, err := c.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return r, nil
}

func (r *Runner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()
	if _, err := r.scheduler.Tick(ctx); err != nil {
		r.log.Error("❌ deadline tick failed", zap.Error(err))
	}
}

// Start begins running ticks in the background.
func (r *Runner) Start() {
	r.log.Info("📅 starting deadline scheduler")
	r.cron.Start()
}

// Stop prevents further ticks and waits for a running one to finish or
// for ctx to expire.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("scheduler stop timed out while a tick was running")
	}
}
