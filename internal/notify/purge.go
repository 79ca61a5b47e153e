package notify

import (
	"context"
	"time"

	"remindd/pkg/logx"
)

// Purge deletes read notifications older than the retention window. It
// runs from a scheduled job, never on the firing path.
func (d *Dispatcher) Purge(ctx context.Context) {
	cutoff := d.clk.Now().Add(-time.Duration(d.cfg.RetentionDays) * 24 * time.Hour)
	n, err := d.store.PurgeNotificationsBefore(ctx, cutoff)
	if err != nil {
		d.log.Error("notification purge failed", logx.Err(err))
		return
	}
	if n > 0 {
		d.log.Info("purged old notifications", logx.Int64("count", n), logx.Time("cutoff", cutoff))
	}
}
