package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-revly/internal/auth"
	"backend-revly/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0"}, nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestTrackingRequiresToken(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret"}, nil, nil, nil)
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest(http.MethodPost, "/tracking/dev-1/start", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token")
	}
}

func TestStreamRequiresToken(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret"}, nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/dev-1", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on websocket upgrade without token")
	}
}

func TestTrackingFlowWithRedisRecovery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := config.Config{JWTSecret: "secret"}
	cfg.RecoveryTTL = time.Hour
	s := NewServer(cfg, nil, client, nil)
	defer s.Close()
	s.Tracking.Permissions().Set("dev-1", true)

	token, err := auth.SignDeviceToken("secret", "user-1", "dev-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	call := func(method, path, body string) *http.Response {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	if resp := call(http.MethodPost, "/tracking/dev-1/start", ""); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	if resp := call(http.MethodPost, "/tracking/dev-1/fixes", `{"latitude":1,"longitude":2,"timestamp_ms":1000}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("fix: %d", resp.StatusCode)
	}
	// the start transition is persisted right away
	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("recovery:dev-1:state") {
		if time.Now().After(deadline) {
			t.Fatalf("recovery state not written to redis")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp := call(http.MethodPost, "/tracking/dev-2/start", ""); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign device: %d", resp.StatusCode)
	}
	if resp := call(http.MethodGet, "/trips/abc", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("trips without db: %d", resp.StatusCode)
	}
}
