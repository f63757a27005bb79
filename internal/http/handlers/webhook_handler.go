package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/membergate/backend/internal/http/dto"
	"github.com/membergate/backend/internal/models"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// metadata key the checkout page sets when the bot initiated the purchase
const telegramMetadataKey = "telegram_user_id"

type Reconciler interface {
	Apply(ctx context.Context, event models.BillingEvent) error
}

// WebhookHandler verifies Stripe signatures and feeds the reconciler.
// Signature failure is a hard 400 before any event content is trusted.
type WebhookHandler struct {
	secret     string
	reconciler Reconciler
	log        *zap.Logger
}

func NewWebhookHandler(secret string, reconciler Reconciler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, reconciler: reconciler, log: log}
}

func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "webhook secret not configured"})
	}

	sigHeader := c.Get("Stripe-Signature")
	if sigHeader == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "missing Stripe signature"})
	}

	event, err := webhook.ConstructEventWithOptions(c.Body(), sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.log.Debug("webhook signature rejected", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid Stripe signature"})
	}

	billingEvent, handled, err := parseEvent(&event)
	if err != nil {
		h.log.Error("webhook decode failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "malformed event payload"})
	}
	if !handled {
		h.log.Info("webhook ignored (unhandled type)",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
		)
		return c.JSON(dto.WebhookReceivedResponse{Received: true})
	}

	if err := h.reconciler.Apply(c.Context(), billingEvent); err != nil {
		h.log.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	}

	return c.JSON(dto.WebhookReceivedResponse{Received: true})
}

// checkoutSession and subscription are minimal views of the Stripe payloads;
// only the fields the reconciler consumes.
type checkoutSession struct {
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`

	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type invoice struct {
	Customer string `json:"customer"`
}

type subscription struct {
	Customer string `json:"customer"`
	EndedAt  int64  `json:"ended_at"`
}

func parseEvent(event *stripelib.Event) (models.BillingEvent, bool, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, false, fmt.Errorf("decode checkout.session: %w", err)
		}
		var telegramID int64
		if raw, ok := session.Metadata[telegramMetadataKey]; ok {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, false, fmt.Errorf("metadata %s=%q is not an id", telegramMetadataKey, raw)
			}
			telegramID = id
		}
		return models.CheckoutCompleted{
			CustomerID:     session.Customer,
			TelegramUserID: telegramID,
			Email:          session.CustomerDetails.Email,
		}, true, nil

	case "invoice.payment_failed":
		var inv invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, false, fmt.Errorf("decode invoice: %w", err)
		}
		return models.PaymentFailed{
			CustomerID: inv.Customer,
			OccurredAt: time.Unix(event.Created, 0).UTC(),
		}, true, nil

	case "customer.subscription.deleted":
		var sub subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, false, fmt.Errorf("decode subscription: %w", err)
		}
		endedAt := sub.EndedAt
		if endedAt == 0 {
			endedAt = event.Created
		}
		return models.SubscriptionEnded{
			CustomerID: sub.Customer,
			EndedAt:    time.Unix(endedAt, 0).UTC(),
		}, true, nil

	default:
		return nil, false, nil
	}
}
