package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/httpapi"
	"OpportunityScout/internal/infrastructure/storage"
	"OpportunityScout/internal/scanner"
	"OpportunityScout/internal/usecase"
)

type fakeDaemon struct {
	restarts int
	ctx      context.Context
}

func (f *fakeDaemon) Restart(ctx context.Context) error {
	f.restarts++
	f.ctx = ctx
	return nil
}

func (f *fakeDaemon) Scheduled() int { return 2 }

func newTestApp(t *testing.T) (*fiber.App, *fakeDaemon) {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	configs := storage.NewConfigRepository(db, logger)
	queue := storage.NewQueueRepository(db)

	engine := usecase.NewEngine(usecase.EngineDeps{Configs: configs, Queue: queue, Logger: logger})
	sc := scanner.Func(func(context.Context, string, string, int) ([]domain.Product, error) {
		return []domain.Product{{Name: "Lego", Price: 20, URL: "https://amazon.test/lego"}}, nil
	})
	control := usecase.NewControlService(usecase.ControlDeps{
		Configs: configs,
		Queue:   queue,
		Engine:  engine,
		Scanner: sc,
		Stats:   usecase.NewStatsService(storage.NewStatsRepository(db)),
		Logger:  logger,
	})

	daemon := &fakeDaemon{}
	app := httpapi.New(httpapi.Deps{
		Control:         control,
		Daemon:          daemon,
		ExpireAfterDays: 14,
		Logger:          logger,
	})
	return app, daemon
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestConfigRoutes(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)

	status, body := do(t, app, "POST", "/api/v1/configs", `{"name":"toys","platforms":["amazon"],"minMarginPct":25}`)
	if status != fiber.StatusCreated {
		t.Fatalf("create: expected 201, got %d %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" || body["minMarginPct"] != 25.0 || body["enabled"] != true {
		t.Fatalf("unexpected config %v", body)
	}

	if status, body := do(t, app, "POST", "/api/v1/configs", `{"intervalMs":5}`); status != fiber.StatusBadRequest {
		t.Fatalf("invalid config: expected 400, got %d %v", status, body)
	}
	if status, _ := do(t, app, "POST", "/api/v1/configs", `{`); status != fiber.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", status)
	}

	status, body = do(t, app, "PATCH", "/api/v1/configs/"+id, `{"keywords":["lego"]}`)
	if status != fiber.StatusOK || body["name"] != "toys" {
		t.Fatalf("patch: %d %v", status, body)
	}
	if status, _ := do(t, app, "PATCH", "/api/v1/configs/missing", `{}`); status != fiber.StatusNotFound {
		t.Fatalf("patch missing: expected 404, got %d", status)
	}

	status, body = do(t, app, "GET", "/api/v1/configs", "")
	if status != fiber.StatusOK || len(body["configs"].([]any)) != 1 {
		t.Fatalf("list: %d %v", status, body)
	}

	if status, _ := do(t, app, "DELETE", "/api/v1/configs/"+id, ""); status != fiber.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", status)
	}
	status, body = do(t, app, "GET", "/api/v1/configs/"+id, "")
	if status != fiber.StatusOK || body["enabled"] != false {
		t.Fatalf("deleted config stays readable and disabled: %d %v", status, body)
	}
	if status, _ := do(t, app, "GET", "/api/v1/configs/missing", ""); status != fiber.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", status)
	}
}

func TestQueueRoutes(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t)

	_, cfg := do(t, app, "POST", "/api/v1/configs", `{"name":"toys","platforms":["amazon"]}`)
	id := cfg["id"].(string)

	status, body := do(t, app, "POST", "/api/v1/configs/"+id+"/run", "")
	if status != fiber.StatusOK || body["queued"] != 1.0 {
		t.Fatalf("run: %d %v", status, body)
	}

	status, body = do(t, app, "GET", "/api/v1/queue?status=pending&configId="+id, "")
	if status != fiber.StatusOK {
		t.Fatalf("list queue: %d %v", status, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", items)
	}
	itemID := items[0].(map[string]any)["id"].(string)

	if status, _ := do(t, app, "GET", "/api/v1/queue?status=bogus", ""); status != fiber.StatusBadRequest {
		t.Fatalf("bad status filter: expected 400, got %d", status)
	}
	if status, _ := do(t, app, "GET", "/api/v1/queue?limit=-1", ""); status != fiber.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", status)
	}

	if status, _ := do(t, app, "POST", "/api/v1/queue/"+itemID+"/listed", `{"listingId":"eb-1"}`); status != fiber.StatusConflict {
		t.Fatalf("listing a pending item: expected 409, got %d", status)
	}
	status, body = do(t, app, "POST", "/api/v1/queue/"+itemID+"/approve", "")
	if status != fiber.StatusOK || body["status"] != "approved" {
		t.Fatalf("approve: %d %v", status, body)
	}
	if status, _ := do(t, app, "POST", "/api/v1/queue/"+itemID+"/reject", ""); status != fiber.StatusConflict {
		t.Fatalf("second review: expected 409, got %d", status)
	}
	if status, _ := do(t, app, "POST", "/api/v1/queue/"+itemID+"/listed", `{}`); status != fiber.StatusBadRequest {
		t.Fatalf("missing listing id: expected 400, got %d", status)
	}
	status, body = do(t, app, "POST", "/api/v1/queue/"+itemID+"/listed", `{"listingId":"eb-1"}`)
	if status != fiber.StatusOK || body["status"] != "listed" || body["listingId"] != "eb-1" {
		t.Fatalf("listed: %d %v", status, body)
	}
	if status, _ := do(t, app, "POST", "/api/v1/queue/missing/approve", ""); status != fiber.StatusNotFound {
		t.Fatalf("approve missing: expected 404, got %d", status)
	}

	status, body = do(t, app, "GET", "/api/v1/queue/"+itemID, "")
	if status != fiber.StatusOK || body["listingId"] != "eb-1" {
		t.Fatalf("get item: %d %v", status, body)
	}

	status, body = do(t, app, "POST", "/api/v1/queue/expire", "")
	if status != fiber.StatusOK || body["maxAgeDays"] != 14.0 || body["expired"] != 0.0 {
		t.Fatalf("expire default: %d %v", status, body)
	}
	if status, _ := do(t, app, "POST", "/api/v1/queue/expire", `{"maxAgeDays":-3}`); status != fiber.StatusBadRequest {
		t.Fatalf("negative age: expected 400, got %d", status)
	}

	status, body = do(t, app, "GET", "/api/v1/stats?configId="+id, "")
	if status != fiber.StatusOK || body["totalListed"] != 1.0 {
		t.Fatalf("stats: %d %v", status, body)
	}
}

func TestDaemonAndHealthRoutes(t *testing.T) {
	t.Parallel()

	app, daemon := newTestApp(t)

	status, body := do(t, app, "POST", "/api/v1/daemon/restart", "")
	if status != fiber.StatusOK || body["scheduled"] != 2.0 || daemon.restarts != 1 {
		t.Fatalf("restart: %d %v", status, body)
	}
	if daemon.ctx == nil {
		t.Fatal("restart must receive the server context")
	}

	status, body = do(t, app, "GET", "/healthz", "")
	if status != fiber.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", status, body)
	}
}
