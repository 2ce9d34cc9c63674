// Package scheduler provides cron-based background jobs for chatrelay.
//
// Its one production job is the session sweep: expired conversations are
// deleted on a fixed interval. The sweep is advisory garbage collection;
// no correctness depends on its timing.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mosaaedak/chatrelay/internal/store"
)

// Sweep policy constants.
const (
	// SessionRetention is how long an idle session survives.
	SessionRetention = time.Hour
	// SweepSchedule runs the sweep every 10 minutes.
	SweepSchedule = "*/10 * * * *"
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard
// 5-field parser, with panic recovery on jobs.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// StartSessionSweep registers the periodic deletion of sessions whose
// last access is older than SessionRetention.
func (s *Scheduler) StartSessionSweep(st store.Store) error {
	return s.AddJob(SweepSchedule, func() {
		deleted, err := st.DeleteExpiredSessions(SessionRetention)
		if err != nil {
			slog.Error("Scheduler: session sweep failed", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("Scheduler: swept expired sessions", "deleted", deleted)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
