package orchestrator

import (
	"context"

	"github.com/robfig/cron/v3"
)

// maintenanceLoop starts a robfig/cron/v3 schedule for the housekeeping
// the spec's maintenance loop calls for: a WAL checkpoint every five
// minutes to bound WAL growth under a long-running process, a daily
// integrity check, a five-minute market-data health log line, and the
// T+1 rollover at 09:00 Shanghai time on weekdays. Adapted from the teacher's
// internal/reliability/maintenance_jobs.go, collapsed from that file's
// multi-database (ledger/cache/history/portfolio) design onto this
// project's single SQLite file.
func (o *Orchestrator) maintenanceLoop(ctx context.Context) {
	defer o.wg.Done()

	if o.db == nil {
		<-o.stopChan
		return
	}

	c := cron.New()
	_, err := c.AddFunc("*/5 * * * *", func() { o.runWALCheckpoint(ctx) })
	if err != nil {
		o.log.Error().Err(err).Msg("failed to schedule WAL checkpoint job")
	}
	_, err = c.AddFunc("0 2 * * *", func() { o.runDailyIntegrityCheck(ctx) })
	if err != nil {
		o.log.Error().Err(err).Msg("failed to schedule daily integrity check")
	}
	_, err = c.AddFunc("*/5 * * * *", func() { o.runHealthSweepLog() })
	if err != nil {
		o.log.Error().Err(err).Msg("failed to schedule health sweep log")
	}
	_, err = c.AddFunc("CRON_TZ=Asia/Shanghai 0 9 * * 1-5", func() {
		if err := o.registry.ApplyT1Rollover(ctx); err != nil {
			o.log.Error().Err(err).Msg("T+1 rollover failed")
		}
	})
	if err != nil {
		o.log.Error().Err(err).Msg("failed to schedule T+1 rollover")
	}

	c.Start()
	defer c.Stop()

	select {
	case <-ctx.Done():
	case <-o.stopChan:
	}
}

func (o *Orchestrator) runWALCheckpoint(ctx context.Context) {
	if err := o.db.WALCheckpoint("TRUNCATE"); err != nil {
		o.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}
}

func (o *Orchestrator) runDailyIntegrityCheck(ctx context.Context) {
	if err := o.db.HealthCheck(ctx); err != nil {
		o.log.Error().Err(err).Msg("daily integrity check failed")
		return
	}
	o.log.Info().Msg("daily integrity check passed")
}

func (o *Orchestrator) runHealthSweepLog() {
	snapshot := o.hub.HealthSnapshot()
	healthy := 0
	for _, ok := range snapshot {
		if ok {
			healthy++
		}
	}
	o.log.Info().Int("healthy_sources", healthy).Int("total_sources", len(snapshot)).Msg("market data health sweep")
}
