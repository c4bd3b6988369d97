package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestSetup_RecordsCounters(t *testing.T) {
	tel, err := Setup(context.Background(), Config{ServiceName: "meetingvoice-test"}, nil)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if otel.GetMeterProvider() != tel.MeterProvider() {
		t.Error("Expected the global meter provider to be replaced")
	}

	counter, err := tel.MeterProvider().Meter("test").Int64Counter("meetingvoice.test.hits")
	if err != nil {
		t.Fatalf("Int64Counter failed: %v", err)
	}
	counter.Add(context.Background(), 3)

	body := scrape(t, tel.Handler())
	if !strings.Contains(body, "meetingvoice_test_hits") {
		t.Errorf("counter missing from scrape:\n%s", body)
	}
	if !strings.Contains(body, "meetingvoice-test") {
		t.Errorf("service name missing from scrape:\n%s", body)
	}
	if tel.Addr() != "" {
		t.Errorf("Expected no server without an address, got %q", tel.Addr())
	}
}

func TestSetup_ServesMetrics(t *testing.T) {
	tel, err := Setup(context.Background(), Config{ServiceName: "meetingvoice-test", Addr: "127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + tel.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Errorf("Unexpected response %d %q", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := client.Get("http://" + tel.Addr() + "/metrics"); err == nil {
		t.Error("Expected the server to be gone after Shutdown")
	}
}

func TestSetup_BadAddr(t *testing.T) {
	if _, err := Setup(context.Background(), Config{Addr: "256.0.0.1:99999"}, nil); err == nil {
		t.Error("Expected an error for an invalid address")
	}
}
