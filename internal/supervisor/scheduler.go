package supervisor

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/axiomtrader/assistant/internal/obs"
)

// CronUnit wraps a robfig/cron schedule into a Unit, so scheduled jobs
// (the currency-rate cache's hourly refresh) share the same supervised
// lifecycle as the streaming components instead of running their own
// unmanaged goroutine.
type CronUnit struct {
	UnitName string
	Spec     string // standard 5-field cron expression
	Job      func(ctx context.Context) error
}

func (c CronUnit) Name() string { return c.UnitName }

// Run starts the cron scheduler and blocks until ctx is cancelled, running
// Job on every tick. A job error is logged, not propagated — one missed
// refresh must not crash the unit and trigger the supervisor's
// crash-restart loop for what is an expected, retriable failure.
func (c CronUnit) Run(ctx context.Context) error {
	log := obs.Component("supervisor").With().Str("job", c.UnitName).Logger()
	sched := cron.New()
	_, err := sched.AddFunc(c.Spec, func() {
		if jobErr := c.Job(ctx); jobErr != nil {
			log.Warn().Err(jobErr).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return err
	}
	sched.Start()
	<-ctx.Done()
	stopCtx := sched.Stop()
	<-stopCtx.Done()
	return nil
}
