package reconcile

import (
	"context"
	"time"

	"github.com/save4223/save4223server/internal/obs"
	"github.com/save4223/save4223server/internal/store"
)

// ExpireStale moves sessions that have been ACTIVE for longer than maxAge
// to TIMEOUT. A late sync for an expired session still reconciles its items.
func (r *Reconciler) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	now := r.now()
	n, err := store.ExpireSessions(ctx, r.DB, now.Add(-maxAge), now)
	if n > 0 {
		obs.SessionsExpired.Add(float64(n))
		r.Logger.Info("expired stale sessions", "count", n)
	}
	return n, err
}

// RunSweeper calls ExpireStale every interval until ctx is cancelled.
func (r *Reconciler) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ExpireStale(ctx, maxAge); err != nil {
				r.Logger.Error("expiring sessions failed", "error", err)
			}
		}
	}
}
