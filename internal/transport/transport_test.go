package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func TestErrorHandlerRendersJSON(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no such token")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "no such token" {
		t.Fatalf("error = %q, want no such token", body["error"])
	}
}

func TestLivez(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())
	RegisterHealthRoutes(app, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/livez", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())
	RegisterHealthRoutes(app, map[string]Check{
		"queue":    func(ctx context.Context) error { return nil },
		"registry": func(ctx context.Context) error { return errors.New("down") },
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/readyz", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "not_ready" {
		t.Fatalf("status = %q, want not_ready", body.Status)
	}
	if body.Checks["queue"] != "ok" || body.Checks["registry"] != "down" {
		t.Fatalf("checks = %v", body.Checks)
	}
}

func TestReadyzAllChecksPass(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())
	RegisterHealthRoutes(app, map[string]Check{
		"queue": func(ctx context.Context) error { return nil },
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/readyz", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
