package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MailerClient talks to the internal mail-delivery service. Delivery is
// best-effort: callers must never roll back state because an email failed,
// the link it carries is independently redeemable.
type MailerClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewMailerClient(baseURL string, log *zap.Logger) *MailerClient {
	return &MailerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

func (c *MailerClient) SendLinkEmail(ctx context.Context, to, confirmURL string) error {
	body, _ := json.Marshal(map[string]any{
		"to":       to,
		"subject":  "Confirm your subscription link",
		"link_url": confirmURL,
	})

	url := fmt.Sprintf("%s/internal/send", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailer service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mailer service returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
