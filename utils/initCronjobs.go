package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fleetserver/broker"
)

// Purger drops closed audit rows older than a cutoff.
type Purger interface {
	PurgeClosed(ctx context.Context, before time.Time) (int64, error)
}

// CronCleaner starts the housekeeping jobs. purger may be nil when no audit
// database is configured. The caller stops the returned scheduler.
func CronCleaner(b *broker.Broker, purger Purger, retention time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 部屋数と接続数を定期的に記録
	if _, err := c.AddFunc("@every 1m", func() { reportGauges(b, logger) }); err != nil {
		return nil, err
	}

	if purger != nil {
		// 保持期間を過ぎたクローズ済みの部屋を削除するジョブ
		_, err := c.AddFunc("@daily", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			purgeClosed(ctx, purger, time.Now().Add(-retention), logger)
		})
		if err != nil {
			return nil, err
		}
	}

	c.Start()
	return c, nil
}

func reportGauges(b *broker.Broker, logger *zap.Logger) {
	registry := b.Registry()
	logger.Info("ブローカーの状態",
		zap.Int("rooms", registry.Count()),
		zap.Int("open_rooms", len(registry.OpenRooms())),
		zap.Int("connections", b.Connections()),
	)
}

func purgeClosed(ctx context.Context, purger Purger, before time.Time, logger *zap.Logger) {
	logger.Info("クローズ済みの部屋を削除する処理を開始", zap.Time("before", before))
	n, err := purger.PurgeClosed(ctx, before)
	if err != nil {
		logger.Error("クローズ済みの部屋の削除に失敗しました", zap.Error(err))
		return
	}
	logger.Info("クローズ済みの部屋の削除完了", zap.Int64("rooms_deleted", n))
}
