/*
scheduler.go - Nightly snapshot job

Runs the snapshot build for the previous day on a cron schedule, so
dashboards open on precomputed indicators instead of triggering lazy
builds for every station at 8am. The job is idempotent: rebuilding a day
overwrites the same rows.
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tollgate/stock-engine/snapshot"
)

// Scheduler owns the background cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	snapshots *snapshot.Service
	log       *logrus.Entry
}

func NewScheduler(snapshots *snapshot.Service, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		snapshots: snapshots,
		log:       log.WithField("component", "scheduler"),
	}
}

// Start registers the nightly snapshot job and starts the cron loop.
// The spec uses standard cron syntax, e.g. "0 2 * * *" for 02:00 daily.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.buildYesterday)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("spec", spec).Info("snapshot job scheduled")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) buildYesterday() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	yesterday := time.Now().AddDate(0, 0, -1)
	report, err := s.snapshots.BuildRange(ctx, yesterday, yesterday, nil)
	if err != nil {
		s.log.WithError(err).Error("nightly snapshot build failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"created": report.Created,
		"updated": report.Updated,
		"errors":  report.Errors,
	}).Info("nightly snapshots built")
}
