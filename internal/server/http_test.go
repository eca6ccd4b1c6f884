package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"uas-ingest/internal/ingest"
	"uas-ingest/internal/pipeline"
	"uas-ingest/internal/store"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	c := ingest.New(pipeline.NewAllowList("simulator", "example_feeder", "remoteid_device"),
		pipeline.NewValidator(pipeline.Thresholds{}), mem, mem, discard())
	return New(c, mem, Options{}, discard()), mem
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	var resp map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", rw.Body.String(), err)
	}
	return rw, resp
}

func TestIngestStoresReport(t *testing.T) {
	s, mem := newTestServer(t)
	rw, resp := post(t, s.Handler(), "/ingest",
		`{"source":"simulator","objectId":"X1","lat":40.0,"lon":-74.0,"altitude":400,"heading":90}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	if resp["ok"] != true || resp["id"] != "simulator:X1" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if _, ok := resp["lastSeen"].(float64); !ok {
		t.Fatalf("expected numeric lastSeen, got %v", resp["lastSeen"])
	}
	if rw.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rw.Header().Get("Content-Type"))
	}

	obj, err := mem.GetObject(context.Background(), "simulator:X1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if obj.Status != "active" || obj.Type != "drone" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	pts, _ := mem.ListPoints(context.Background(), "simulator:X1")
	if len(pts) != 1 {
		t.Fatalf("expected 1 point, got %d", len(pts))
	}
}

func TestIngestMountedAtRoot(t *testing.T) {
	s, _ := newTestServer(t)
	rw, resp := post(t, s.Handler(), "/",
		`{"source":"remoteid_device","objectId":7,"lat":51.5,"lon":-0.1,"model":"Mini 4 Pro"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	if resp["id"] != "remoteid_device:7" {
		t.Fatalf("unexpected id: %v", resp["id"])
	}
}

func TestIngestStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		check  func(t *testing.T, resp map[string]any)
	}{
		{
			name:   "unknown source",
			body:   `{"source":"rogue","objectId":"X1","lat":40,"lon":-74,"altitude":400}`,
			status: http.StatusForbidden,
			check: func(t *testing.T, resp map[string]any) {
				if resp["error"] != "Source not allowed" || resp["source"] != "rogue" {
					t.Fatalf("unexpected body: %v", resp)
				}
			},
		},
		{
			name:   "non-string source echoed",
			body:   `{"source":42,"objectId":"X1","lat":40,"lon":-74}`,
			status: http.StatusForbidden,
			check: func(t *testing.T, resp map[string]any) {
				if resp["source"] != float64(42) {
					t.Fatalf("expected source 42 echoed, got %v", resp["source"])
				}
			},
		},
		{
			name:   "garbage body",
			body:   `not json`,
			status: http.StatusForbidden,
			check: func(t *testing.T, resp map[string]any) {
				if v, ok := resp["source"]; !ok || v != nil {
					t.Fatalf("expected null source, got %v", resp)
				}
			},
		},
		{
			name:   "missing lat",
			body:   `{"source":"simulator","objectId":"X1","lon":-74}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, resp map[string]any) {
				req, _ := resp["required"].([]any)
				if resp["error"] != "Invalid payload" || len(req) != 4 {
					t.Fatalf("unexpected body: %v", resp)
				}
			},
		},
		{
			name:   "string lat",
			body:   `{"source":"simulator","objectId":"X1","lat":"40","lon":-74}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "null island",
			body:   `{"source":"simulator","objectId":"X1","lat":0,"lon":0,"altitude":10}`,
			status: http.StatusAccepted,
			check: func(t *testing.T, resp map[string]any) {
				if resp["ok"] != false || resp["dropped"] != true || resp["reason"] != "non-uas-payload" {
					t.Fatalf("unexpected body: %v", resp)
				}
			},
		},
		{
			name:   "no aeronautical signal",
			body:   `{"source":"example_feeder","objectId":"B1","lat":40,"lon":-74,"speed":3}`,
			status: http.StatusAccepted,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rw, resp := post(t, s.Handler(), "/ingest", tc.body)
			if rw.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rw.Code, rw.Body.String())
			}
			if tc.check != nil {
				tc.check(t, resp)
			}
		})
	}
}

func TestIngestRejectsOtherMethods(t *testing.T) {
	s, _ := newTestServer(t)
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		for _, path := range []string{"/ingest", "/"} {
			req := httptest.NewRequest(m, path, nil)
			rw := httptest.NewRecorder()
			s.Handler().ServeHTTP(rw, req)
			if rw.Code != http.StatusMethodNotAllowed {
				t.Fatalf("%s %s: expected 405, got %d", m, path, rw.Code)
			}
			if !strings.Contains(rw.Body.String(), `"POST only"`) {
				t.Fatalf("%s %s: unexpected body %s", m, path, rw.Body.String())
			}
		}
	}
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, string, pipeline.Report) (ingest.Result, error) {
	return ingest.Result{}, errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func TestIngestStoreFailureHidesDetails(t *testing.T) {
	s := New(failingIngester{}, nil, Options{}, discard())
	rw, resp := post(t, s.Handler(), "/ingest", `{"source":"simulator","objectId":"X1","lat":40,"lon":-74,"altitude":1}`)
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if resp["error"] != "Internal error" || strings.Contains(rw.Body.String(), "10.0.0.5") {
		t.Fatalf("unexpected body: %s", rw.Body.String())
	}
}

func TestOversizedBodyTreatedAsEmpty(t *testing.T) {
	mem := store.NewMemory()
	c := ingest.New(pipeline.NewAllowList("simulator"), pipeline.NewValidator(pipeline.Thresholds{}), mem, mem, discard())
	s := New(c, mem, Options{MaxBodyBytes: 16}, discard())
	rw, _ := post(t, s.Handler(), "/ingest", `{"source":"simulator","objectId":"X1","lat":40,"lon":-74,"altitude":1}`)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/ingest", nil)
	req.Header.Set("Origin", "https://display.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	if rw.Code >= 300 {
		t.Fatalf("expected preflight success, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", rw.Code, rw.Body.String())
	}

	down := New(failingIngester{}, downPinger{}, Options{}, discard())
	rw = httptest.NewRecorder()
	down.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
}

func TestRateLimit(t *testing.T) {
	mem := store.NewMemory()
	c := ingest.New(pipeline.NewAllowList("simulator"), pipeline.NewValidator(pipeline.Thresholds{}), mem, mem, discard())
	s := New(c, mem, Options{RateLimitRequests: 1, RateLimitWindow: time.Minute}, discard())
	h := s.Handler()

	body := `{"source":"simulator","objectId":"X1","lat":40,"lon":-74,"altitude":1}`
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}
