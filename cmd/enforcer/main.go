package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/membergate/backend/internal/config"
	"github.com/membergate/backend/internal/db"
	"github.com/membergate/backend/internal/events"
	"github.com/membergate/backend/internal/repositories"
	"go.uber.org/zap"
)

// Enforcer is the scheduled process that acts on lapsed deadlines. It only
// reads status + deadline_at; the bot performs the actual removal when it
// receives the access_revoke event. Also sweeps expired link tokens.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	memberRepo := repositories.NewMemberRepo(pool)
	tokenRepo := repositories.NewTokenRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	log.Info("enforcer started",
		zap.Duration("interval", cfg.EnforcementInterval),
	)

	enforceTicker := time.NewTicker(cfg.EnforcementInterval)
	sweepTicker := time.NewTicker(1 * time.Hour)
	defer enforceTicker.Stop()
	defer sweepTicker.Stop()

	// Deduplicates revocation events between ticks; the bot tolerates
	// repeats, this just keeps the channel quiet.
	published := make(map[uuid.UUID]time.Time)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-enforceTicker.C:
			runEnforcement(ctx, memberRepo, publisher, published, log)
		case <-sweepTicker.C:
			runTokenSweep(ctx, tokenRepo, cfg.TokenRetention, log)
		case <-sigCh:
			log.Info("shutting down enforcer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runEnforcement(ctx context.Context, memberRepo *repositories.MemberRepo, publisher events.Publisher, published map[uuid.UUID]time.Time, log *zap.Logger) {
	now := time.Now()
	lapsed, err := memberRepo.ListLapsed(ctx, now)
	if err != nil {
		log.Error("failed to list lapsed members", zap.Error(err))
		return
	}

	for _, m := range lapsed {
		if last, ok := published[m.ID]; ok && now.Sub(last) < 24*time.Hour {
			continue
		}

		log.Info("access deadline passed",
			zap.String("member_id", m.ID.String()),
			zap.Int64("telegram_user_id", m.TelegramUserID),
			zap.String("status", m.Status),
			zap.Timep("deadline_at", m.DeadlineAt),
		)

		err := publisher.Publish(ctx, events.ChannelBilling, events.Event{
			Type: events.EventAccessRevoke,
			Payload: map[string]any{
				"telegram_user_id": m.TelegramUserID,
				"status":           m.Status,
			},
		})
		if err != nil {
			log.Error("failed to publish revoke event", zap.String("member_id", m.ID.String()), zap.Error(err))
			continue
		}
		published[m.ID] = now
	}
}

func runTokenSweep(ctx context.Context, tokenRepo *repositories.TokenRepo, retention time.Duration, log *zap.Logger) {
	n, err := tokenRepo.DeleteExpired(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Error("token sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired tokens swept", zap.Int64("count", n))
	}
}
