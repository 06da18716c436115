package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentWorker, Format: "json", Output: &buf})
	logger.Info("mirrored", "rows", 3)
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec["component"] != ComponentWorker || rec["msg"] != "mirrored" || rec["rows"] != float64(3) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestWithComponent_SingleAttribute(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentApp, Output: &buf})
	derived := base.WithComponent(ComponentHTTP).WithComponent(ComponentTrace)
	derived.Info("hello")

	out := buf.String()
	if n := strings.Count(out, "component="); n != 1 {
		t.Fatalf("component attribute appears %d times: %s", n, out)
	}
	if !strings.Contains(out, "component=trace") {
		t.Fatalf("missing component: %s", out)
	}
	if derived.Component() != ComponentTrace || base.Component() != ComponentApp {
		t.Fatal("WithComponent must not mutate the parent")
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != ComponentApp {
		t.Fatalf("fallback component = %q", got.Component())
	}
	l := Discard(ComponentFinance)
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Fatal("FromContext did not return the stored logger")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentHTTP, Output: &buf})

	h := Middleware(logger)(RequestIDMiddleware(func(r *http.Request) string {
		return r.Header.Get("X-Request-ID")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request_id=req_42") {
		t.Fatalf("request id not bound: %s", buf.String())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Component: ComponentFinance, Output: &buf}))
	ctx := context.Background()

	sl.LogDistribution(ctx, 7, 10000, "income", "auto", 3)
	sl.LogError(ctx, "publish failed", errors.New("broker down"), ComponentAMQP, OpPublish, NewFields().WithUserID(7))

	req := httptest.NewRequest(http.MethodGet, "/api/buckets?x=1", nil)
	sl.LogHTTPEnd(ctx, req, http.StatusServiceUnavailable, 12, "10.0.0.1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	checks := [][]string{
		{"level=INFO", "component=finance", "operation=distribute", "amount_cents=10000", "entries=3", "user_id=7"},
		{"level=ERROR", "component=amqp", "error=\"broker down\"", "operation=publish"},
		{"level=ERROR", "status_code=503", "success=false", "query=\"x=1\"", "client_ip=10.0.0.1"},
	}
	for i, wants := range checks {
		for _, w := range wants {
			if !strings.Contains(lines[i], w) {
				t.Errorf("line %d missing %q: %s", i, w, lines[i])
			}
		}
		if n := strings.Count(lines[i], "component="); n != 1 {
			t.Errorf("line %d has %d component attributes", i, n)
		}
	}
}

func TestLogFieldsToSliceIsSorted(t *testing.T) {
	got := NewFields().WithUserID(1).WithOperation("b").WithClientIP("a").ToSlice()
	want := []any{FieldClientIP, "a", FieldOperation, "b", FieldUserID, int64(1)}
	if len(got) != len(want) {
		t.Fatalf("ToSlice() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ToSlice()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
