// Package scheduler provides cron-based scheduling for recurring background
// work such as consultation summary refreshes and update checks.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// JobID identifies a scheduled job for later removal.
type JobID cron.EntryID

// Scheduler runs jobs on cron expressions.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler. Jobs use the standard
// 5-field expression format and recover from panics.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task on the given cron expression. It returns an error if
// the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (JobID, error) {
	id, err := s.cron.AddFunc(expr, task)
	return JobID(id), err
}

// Remove cancels a scheduled job.
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(cron.EntryID(id))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
