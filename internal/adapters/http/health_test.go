package http_test

import (
	"errors"
	"testing"

	handler "github.com/samirrijal/wastemap/internal/adapters/http"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("GET", "/v1/health", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if got := decode[map[string]any](t, body)["status"]; got != "healthy" {
		t.Errorf("expected healthy, got %v", got)
	}
}

func TestReady_OptionalDependenciesDoNotFail(t *testing.T) {
	e := newEnv(t, func(d *handler.Dependencies) {
		d.NATS = fakeBroker{up: false}
		d.Cache = fakePinger{err: errors.New("dial tcp: refused")}
	})

	status, body := e.do("GET", "/v1/ready", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	r := decode[readyBody](t, body)
	if r.Checks["nats"] != "disconnected" {
		t.Errorf("nats check = %q", r.Checks["nats"])
	}
	if r.Checks["map"] != "ok (no surface connected)" {
		t.Errorf("map check = %q", r.Checks["map"])
	}
}

func TestReady_SurfaceConnected(t *testing.T) {
	e := newEnv(t)
	e.connect()

	_, body := e.do("GET", "/v1/ready", "")
	if r := decode[readyBody](t, body); r.Checks["map"] != "ok" {
		t.Errorf("map check = %q", r.Checks["map"])
	}
}

func TestReady_DatabaseDown(t *testing.T) {
	e := newEnv(t, func(d *handler.Dependencies) {
		d.DB = fakePinger{err: errors.New("connection refused")}
	})

	status, body := e.do("GET", "/v1/ready", "")
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
	if r := decode[readyBody](t, body); r.Status != "not ready" {
		t.Errorf("status = %q", r.Status)
	}
}

func TestReady_Unmounted(t *testing.T) {
	e := newEnv(t)
	e.bridge.Unmount()

	if status, _ := e.do("GET", "/v1/ready", ""); status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
}
