package worker

import (
	"time"

	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/ratelimit"
	"github.com/robfig/cron/v3"
)

// Compactor periodically drops dead rate-limit entries from the local
// store. Sessions are not touched here: session expiry stays lazy.
type Compactor struct {
	limiter *ratelimit.Limiter
	maxAge  time.Duration
	cron    *cron.Cron
	logger  *logger.Logger
}

// NewCompactor creates a compaction worker. maxAge must be at least the
// longest configured rate-limit window, or live entries would be dropped.
func NewCompactor(limiter *ratelimit.Limiter, maxAge time.Duration, log *logger.Logger) *Compactor {
	return &Compactor{
		limiter: limiter,
		maxAge:  maxAge,
		cron:    cron.New(),
		logger:  log,
	}
}

// Start schedules compaction according to the cron spec and begins running
func (c *Compactor) Start(schedule string) error {
	_, err := c.cron.AddFunc(schedule, c.run)
	if err != nil {
		return err
	}
	c.cron.Start()
	c.logger.Infof("Rate limit compactor scheduled: %s", schedule)
	return nil
}

// Stop halts the schedule, waiting for a running compaction to finish
func (c *Compactor) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *Compactor) run() {
	if err := c.limiter.Compact(c.maxAge); err != nil {
		c.logger.ErrorWithErr(err, "Rate limit compaction failed")
		return
	}
	c.logger.Debug("Rate limit compaction completed")
}
