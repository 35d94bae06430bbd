package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// TrimLogsQuery keeps the newest rows of the audit log by timestamp. Rows
// without a timestamp rank oldest on every driver.
const TrimLogsQuery = `DELETE FROM logs WHERE id NOT IN (SELECT id FROM logs ORDER BY COALESCE(ix_date, '') DESC, id DESC LIMIT ?)`

// StartLogCleaner re-applies the audit log cap every interval. Appends
// trim as they go, but a failed trim is swallowed, so this is the backstop.
func StartLogCleaner(
	ctx context.Context,
	db *sql.DB,
	dialect Dialect,
	interval time.Duration,
	keep int,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	query := dialect.Rebind(TrimLogsQuery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := db.ExecContext(ctx, query, keep)
				if err != nil {
					log.Error("failed to trim audit log", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("trimmed audit log", zap.Int64("removed", rows), zap.String("table", string(models.Logs)))
				}
			}
		}
	}()
}
