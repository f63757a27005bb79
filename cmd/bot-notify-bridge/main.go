package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/membergate/backend/internal/config"
	"github.com/membergate/backend/internal/db"
	"github.com/membergate/backend/internal/events"
	"github.com/membergate/backend/internal/services"
	"go.uber.org/zap"
)

// Bot notify bridge: a small service that subscribes to Redis events and
// forwards them to the Telegram bot's internal API as user-facing
// notifications (and revocations for lapsed members).

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	botClient := services.NewBotClient(cfg.BotInternalURL, log)

	log.Info("bot-notify-bridge started")

	_ = subscriber.Subscribe(ctx, events.ChannelLink, func(event events.Event) {
		forward(ctx, botClient, event, log)
	})
	_ = subscriber.Subscribe(ctx, events.ChannelBilling, func(event events.Event) {
		forward(ctx, botClient, event, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down bot-notify-bridge")
	cancel()
}

func forward(ctx context.Context, bot *services.BotClient, event events.Event, log *zap.Logger) {
	// The bot initiated the link request itself; nothing to tell it.
	if event.Type == events.EventLinkRequested {
		return
	}

	id, ok := telegramID(event.Payload)
	if !ok {
		return
	}

	if event.Type == events.EventAccessRevoke {
		if err := bot.RevokeAccess(ctx, id); err != nil {
			log.Warn("failed to forward revocation", zap.Int64("telegram_user_id", id), zap.Error(err))
		}
		return
	}

	text := notificationText(event.Type)
	if text == "" {
		text = fmt.Sprintf("Event: %s", event.Type)
	}
	if err := bot.SendNotification(ctx, id, text); err != nil {
		log.Warn("failed to forward notification", zap.Int64("telegram_user_id", id), zap.Error(err))
	}
}

func notificationText(eventType string) string {
	switch eventType {
	case events.EventLinkActivated:
		return "Your subscription is linked. Welcome aboard!"
	case events.EventPaymentFailed:
		return "Your last payment failed. Please update your payment method to keep access."
	case events.EventSubscriptionEnded:
		return "Your subscription has ended. Renew to keep access."
	default:
		return ""
	}
}

// telegramID digs the id out of a decoded JSON payload, where numbers
// arrive as float64.
func telegramID(payload map[string]any) (int64, bool) {
	switch v := payload["telegram_user_id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
