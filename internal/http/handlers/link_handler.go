package handlers

import (
	"bytes"
	"context"
	"errors"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/membergate/backend/internal/http/dto"
	"github.com/membergate/backend/internal/models"
	"github.com/membergate/backend/internal/services"
	"go.uber.org/zap"
)

// LinkFlow is the slice of LinkService the handler needs; tests substitute
// a fake.
type LinkFlow interface {
	Start(ctx context.Context, telegramUserID int64, username *string) (string, error)
	Present(ctx context.Context, secret string) (*models.LinkToken, error)
	Verify(ctx context.Context, secret, email string) (*services.VerifyResult, error)
	Finish(ctx context.Context, secret string) (*models.Member, error)
}

type LinkHandler struct {
	links LinkFlow
	log   *zap.Logger
}

func NewLinkHandler(links LinkFlow, log *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, log: log}
}

// StartLink is the internal endpoint the bot calls when a user asks to link.
func (h *LinkHandler) StartLink(c *fiber.Ctx) error {
	var req dto.StartLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	linkURL, err := h.links.Start(c.Context(), req.TelegramUserID, req.Username)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.log.Error("start link failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.StartLinkResponse{LinkURL: linkURL})
}

// Present renders the email form if the link is still live.
func (h *LinkHandler) Present(c *fiber.Ctx) error {
	secret := c.Params("secret")

	if _, err := h.links.Present(c.Context(), secret); err != nil {
		return h.renderLinkError(c, err)
	}

	return renderPage(c, fiber.StatusOK, formPage, fiber.Map{"Secret": secret})
}

// Verify consumes the form post. Whatever the outcome, the handshake link
// is spent by the time a page renders.
func (h *LinkHandler) Verify(c *fiber.Ctx) error {
	secret := c.Params("secret")

	var req dto.VerifyLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return renderPage(c, fiber.StatusBadRequest, messagePage, fiber.Map{
			"Title": "Something went wrong", "Message": "Please enter the email you subscribed with.",
		})
	}

	result, err := h.links.Verify(c.Context(), secret, req.Email)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			return renderPage(c, fiber.StatusBadRequest, messagePage, fiber.Map{
				"Title": "Something went wrong", "Message": "Please enter the email you subscribed with.",
			})
		}
		return h.renderLinkError(c, err)
	}

	switch result.Outcome {
	case services.VerifyNoCustomer:
		return renderPage(c, fiber.StatusOK, messagePage, fiber.Map{
			"Title":   "No subscription found",
			"Message": "We couldn't find a customer with that email. Head back to the bot and request a new link to try again.",
		})
	case services.VerifyNoSubscription:
		return renderPage(c, fiber.StatusOK, messagePage, fiber.Map{
			"Title":   "No active subscription",
			"Message": "That account exists but has no active subscription. Head back to the bot and request a new link once you've subscribed.",
		})
	default:
		return renderPage(c, fiber.StatusOK, confirmPage, fiber.Map{
			"ConfirmURL": result.ConfirmURL,
		})
	}
}

// Finish redeems the verification link and activates the member.
func (h *LinkHandler) Finish(c *fiber.Ctx) error {
	secret := c.Params("secret")

	if _, err := h.links.Finish(c.Context(), secret); err != nil {
		return h.renderLinkError(c, err)
	}

	return renderPage(c, fiber.StatusOK, messagePage, fiber.Map{
		"Title":   "You're linked!",
		"Message": "Your subscription is connected. You can close this page and return to Telegram.",
	})
}

// renderLinkError keeps one identical page for every token failure so the
// response does not reveal whether a secret was used, expired or never
// existed.
func (h *LinkHandler) renderLinkError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrLinkDenied) {
		return renderPage(c, fiber.StatusForbidden, messagePage, fiber.Map{
			"Title":   "Link invalid or expired",
			"Message": "This link is no longer valid. Go back to the bot and request a new one.",
		})
	}
	h.log.Error("link flow failed", zap.Error(err))
	return renderPage(c, fiber.StatusInternalServerError, messagePage, fiber.Map{
		"Title": "Something went wrong", "Message": "Please try again in a moment.",
	})
}

func renderPage(c *fiber.Ctx, status int, tpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return err
	}
	c.Set("Content-Type", fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).SendString(buf.String())
}

// Minimal inline pages. Layout is deliberately not this service's problem.
var (
	formPage = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html><head><title>Link your subscription</title></head><body>
<h1>Link your subscription</h1>
<p>Enter the email you used when subscribing.</p>
<form method="post" action="/link/{{.Secret}}">
<input type="email" name="email" placeholder="you@example.com" required>
<button type="submit">Verify</button>
</form>
</body></html>`))

	confirmPage = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html><head><title>Check your email</title></head><body>
<h1>Almost there</h1>
<p>We sent a confirmation link to your email. You can also finish right now:</p>
<p><a href="{{.ConfirmURL}}">Confirm and link my account</a></p>
</body></html>`))

	messagePage = template.Must(template.New("message").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head><body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body></html>`))
)
