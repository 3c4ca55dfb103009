package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/config"
	"dcawallet-api/internal/monitoring"
	"dcawallet-api/internal/services"
)

// Scheduler owns the cron runner and the background jobs registered on it.
// All schedules run in UTC.
type Scheduler struct {
	cron *cron.Cron
	cfg  config.SchedulerConfig
	log  *logrus.Entry
}

// NewScheduler wires the DCA sweep and the daily summary batch onto a cron
// runner. Nothing runs until Start.
func NewScheduler(cfg config.SchedulerConfig, dca *services.DCAService, summaries *services.SummaryService,
	metrics *monitoring.Metrics) (*Scheduler, error) {
	runner := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{
		cron: runner,
		cfg:  cfg,
		log:  logrus.WithField("component", "scheduler"),
	}

	if _, err := runner.AddJob(cfg.DCASpec, &dcaJob{dca: dca, metrics: metrics, log: s.log}); err != nil {
		return nil, fmt.Errorf("invalid DCA schedule %q: %w", cfg.DCASpec, err)
	}
	if _, err := runner.AddJob(cfg.SummarySpec, &summaryJob{summaries: summaries, log: s.log}); err != nil {
		return nil, fmt.Errorf("invalid summary schedule %q: %w", cfg.SummarySpec, err)
	}

	return s, nil
}

// Start launches the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"dca_spec":     s.cfg.DCASpec,
		"summary_spec": s.cfg.SummarySpec,
	}).Info("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// dcaJob triggers the DCA sweep.
type dcaJob struct {
	dca     *services.DCAService
	metrics *monitoring.Metrics
	log     *logrus.Entry
}

func (j *dcaJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	executed := j.dca.RunSweep(ctx)
	j.metrics.RecordDCASweep(time.Since(start))
	j.metrics.RecordDCAPurchases(executed)
	j.log.WithField("duration", time.Since(start)).Debug("DCA job finished")
}

// summaryJob triggers the daily summary batch.
type summaryJob struct {
	summaries *services.SummaryService
	log       *logrus.Entry
}

func (j *summaryJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	j.summaries.RunDailyBatch(ctx)
	j.log.WithField("duration", time.Since(start)).Debug("Summary job finished")
}
