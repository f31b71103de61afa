// Package scheduler provides cron-based scheduling for Shepherd.
//
// Its only core consumer is the SLA sweep that raises the priority of
// requests waiting past the configured threshold.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// New creates and starts a cron scheduler using the standard 5-field format,
// with panic recovery around jobs.
func New() *Scheduler {
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

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
