package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/config"
	"github.com/kingrea/lattice-autopilot/internal/logbook"
	"github.com/kingrea/lattice-autopilot/internal/monitor"
	"github.com/kingrea/lattice-autopilot/internal/overview"
)

type staticReader checkpoint.Snapshot

func (s staticReader) Read() checkpoint.Snapshot { return checkpoint.Snapshot(s) }

func TestSettingsFromConfig(t *testing.T) {
	t.Setenv("AUTOPILOT_STATUS_PORT", "9001")
	cfg, err := config.Load(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if !settings.Enabled {
		t.Fatalf("expected a port override to enable the server")
	}
	if settings.Address() != "127.0.0.1:9001" {
		t.Fatalf("unexpected address %s", settings.Address())
	}
}

func TestSettingsDisabledByDefault(t *testing.T) {
	settings := SettingsFromConfig(nil)
	if settings.Enabled {
		t.Fatalf("expected server to be disabled without config")
	}
	srv := NewServer(settings)
	if err := srv.Start(context.Background()); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func newBook(t *testing.T, lines ...string) *logbook.Logbook {
	t.Helper()
	book, err := logbook.New(filepath.Join(t.TempDir(), "autopilot.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range lines {
		book.Info("%s", line)
	}
	return book
}

func TestStatusEndpoint(t *testing.T) {
	board := monitor.NewBoard()
	dispatchedAt := time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC)
	board.Publish(monitor.BoardState{Status: checkpoint.StatusWaiting, Outcome: monitor.OutcomeNudged, LastDispatchAt: &dispatchedAt, LastStrategy: "clipboard", Ticks: 7})
	snap := checkpoint.Idle()
	snap.Status = checkpoint.StatusWaiting
	snap.TaskName = "タイピングゲーム"
	collector := overview.NewCollector(staticReader(snap), overview.WithBoard(board))
	srv := NewServer(Settings{}, WithCollector(collector))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got overview.Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != checkpoint.StatusWaiting || got.Mission.Name != "タイピングゲーム" {
		t.Fatalf("unexpected overview %+v", got)
	}
	if got.Monitor == nil || got.Monitor.Ticks != 7 || got.Monitor.LastStrategy != "clipboard" {
		t.Fatalf("expected monitor board in response, got %+v", got.Monitor)
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv := NewServer(Settings{}, WithLogbook(newBook(t, "one", "two", "three")))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?n=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || len(got.Entries) != 2 {
		t.Fatalf("expected 2 of 3 entries, got %d of %d", len(got.Entries), got.Total)
	}
	if got.Entries[0].Message != "three" {
		t.Fatalf("expected newest first, got %q", got.Entries[0].Message)
	}
}

func TestLogsRejectsBadCount(t *testing.T) {
	srv := NewServer(Settings{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?n=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReadOnlyRoutes(t *testing.T) {
	srv := NewServer(Settings{})
	for _, path := range []string{"/health", "/status", "/logs"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rec.Code)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if srv.Status() != StatusReady {
		t.Fatalf("expected ready, got %s", srv.Status())
	}
	resp, err := http.Get(srv.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != string(StatusReady) {
		t.Fatalf("unexpected health %+v", health)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if srv.Addr() != "" {
		t.Fatalf("expected no address after shutdown")
	}
}
