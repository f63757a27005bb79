package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"github.com/membergate/backend/internal/models"
	"github.com/membergate/backend/internal/services"
	"go.uber.org/zap"
)

type fakeLinkFlow struct {
	startURL     string
	startErr     error
	presentErr   error
	verifyResult *services.VerifyResult
	verifyErr    error
	finishErr    error
}

func (f *fakeLinkFlow) Start(_ context.Context, _ int64, _ *string) (string, error) {
	return f.startURL, f.startErr
}

func (f *fakeLinkFlow) Present(_ context.Context, _ string) (*models.LinkToken, error) {
	if f.presentErr != nil {
		return nil, f.presentErr
	}
	return &models.LinkToken{Kind: models.TokenKindHandshake}, nil
}

func (f *fakeLinkFlow) Verify(_ context.Context, _, _ string) (*services.VerifyResult, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeLinkFlow) Finish(_ context.Context, _ string) (*models.Member, error) {
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	return &models.Member{Status: models.MemberStatusActive}, nil
}

func newLinkApp(flow *fakeLinkFlow) *fiber.App {
	h := NewLinkHandler(flow, zap.NewNop())
	app := fiber.New()
	app.Post("/internal/link/start", h.StartLink)
	app.Get("/link/:secret", h.Present)
	app.Post("/link/:secret", h.Verify)
	app.Get("/activate/:secret", h.Finish)
	return app
}

func TestPresentRendersEmailForm(t *testing.T) {
	app := newLinkApp(&fakeLinkFlow{})

	resp, err := app.Test(httptest.NewRequest("GET", "/link/sec123", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	form := doc.Find(`form[action="/link/sec123"]`)
	if form.Length() != 1 {
		t.Errorf("form posting back to the same secret not found")
	}
	if form.Find(`input[name="email"]`).Length() != 1 {
		t.Errorf("email input not found")
	}
}

// Used, expired and unknown secrets must be indistinguishable: same status,
// same body, on both the form page and the activate page.
func TestDeniedPagesAreIndistinguishable(t *testing.T) {
	app := newLinkApp(&fakeLinkFlow{
		presentErr: services.ErrLinkDenied,
		verifyErr:  services.ErrLinkDenied,
		finishErr:  services.ErrLinkDenied,
	})

	var bodies []string
	for _, req := range []struct{ method, path string }{
		{"GET", "/link/used-secret"},
		{"GET", "/link/expired-secret"},
		{"GET", "/activate/whatever"},
	} {
		resp, err := app.Test(httptest.NewRequest(req.method, req.path, nil), -1)
		if err != nil {
			t.Fatalf("%s %s: %v", req.method, req.path, err)
		}
		if resp.StatusCode != fiber.StatusForbidden {
			t.Errorf("%s %s status = %d, want 403", req.method, req.path, resp.StatusCode)
		}
		b, _ := io.ReadAll(resp.Body)
		bodies = append(bodies, string(b))
	}

	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("denied body %d differs from body 0", i)
		}
	}
	if !strings.Contains(bodies[0], "invalid or expired") {
		t.Errorf("denied page missing generic message: %q", bodies[0])
	}
}

func TestVerifyOutcomePages(t *testing.T) {
	tests := []struct {
		name   string
		result *services.VerifyResult
		wantIn string
	}{
		{"no customer", &services.VerifyResult{Outcome: services.VerifyNoCustomer}, "couldn't find a customer"},
		{"no subscription", &services.VerifyResult{Outcome: services.VerifyNoSubscription}, "no active subscription"},
		{"verified", &services.VerifyResult{Outcome: services.VerifyOK, ConfirmURL: "http://gate.test/activate/v1"}, "http://gate.test/activate/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newLinkApp(&fakeLinkFlow{verifyResult: tt.result})

			req := httptest.NewRequest("POST", "/link/sec123", strings.NewReader("email=a%40b.com"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			b, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(b), tt.wantIn) {
				t.Errorf("body missing %q:\n%s", tt.wantIn, b)
			}
		})
	}
}

func TestStartLinkEndpoint(t *testing.T) {
	app := newLinkApp(&fakeLinkFlow{startURL: "http://gate.test/link/abc"})

	req := httptest.NewRequest("POST", "/internal/link/start", strings.NewReader(`{"telegram_user_id":42}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `"link_url":"http://gate.test/link/abc"`) {
		t.Errorf("unexpected body: %s", b)
	}
}

func TestStartLinkInvalidInput(t *testing.T) {
	app := newLinkApp(&fakeLinkFlow{startErr: services.ErrInvalidInput})

	req := httptest.NewRequest("POST", "/internal/link/start", strings.NewReader(`{"telegram_user_id":0}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
