package metrics

import (
	"context"
	"database/sql"
	"time"
)

// StatsSource is satisfied by *sql.DB.
type StatsSource interface {
	Stats() sql.DBStats
}

// UpdateDBConnectionStats copies a pool snapshot into the gauges.
func UpdateDBConnectionStats(s sql.DBStats) {
	DBConnectionsInUse.Set(float64(s.InUse))
	DBConnectionsIdle.Set(float64(s.Idle))
	DBConnectionsOpen.Set(float64(s.OpenConnections))
	DBWaitCount.Set(float64(s.WaitCount))
}

// CollectDBStats refreshes the pool gauges every interval until ctx is done.
func CollectDBStats(ctx context.Context, db StatsSource, interval time.Duration) {
	UpdateDBConnectionStats(db.Stats())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UpdateDBConnectionStats(db.Stats())
		}
	}
}
