package attempt

import (
	"context"
	"time"
)

// Sweep finalizes up to limit attempts whose deadline has passed and returns
// how many calls succeeded.
func (c *Coordinator) Sweep(ctx context.Context, limit int) (int, error) {
	expired, err := c.store.ListExpired(ctx, c.enforcer.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range expired {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := c.Finalize(ctx, a.ID); err != nil {
			c.entry(a).WithError(err).Error("auto-finalize failed")
			continue
		}
		n++
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration, batch int) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.Sweep(ctx, batch)
			if err != nil {
				c.log.WithError(err).Warn("sweep failed")
				continue
			}
			if n > 0 {
				c.log.WithField("graded", n).Info("expired attempts finalized")
			}
		}
	}
}
