package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hazz-dev/uptimebot/internal/control"
	"github.com/hazz-dev/uptimebot/internal/metrics"
	"github.com/hazz-dev/uptimebot/internal/server"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

const (
	owner int64 = 1
	alice int64 = 2
	bob   int64 = 3
)

type fixture struct {
	db      *storage.DB
	state   *control.MemoryState
	metrics *metrics.Metrics
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	state := control.NewMemoryState()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	ctl := control.New(db, state, owner, nil)
	s := server.New(ctl, db, m, nil)
	return &fixture{db: db, state: state, metrics: m, router: s.Router()}
}

func (f *fixture) do(t *testing.T, user int64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != 0 {
		req.Header.Set(server.UserHeader, strconv.FormatInt(user, 10))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) add(t *testing.T, user int64, name, endpoint string) storage.Service {
	t.Helper()
	svc := &storage.Service{Owner: user, Name: name, Endpoint: endpoint}
	if err := f.db.Insert(context.Background(), svc); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return *svc
}

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decoding JSON response: %v", err)
	}
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, 0, "GET", "/api/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

type brokenStore struct{}

func (brokenStore) Ping(context.Context) error { return errors.New("db closed") }
func (brokenStore) ServiceHistory(context.Context, string, int, int) ([]storage.Check, int, error) {
	return nil, 0, errors.New("db closed")
}
func (brokenStore) UptimePercent(context.Context, string, int) (float64, error) { return 0, nil }

func TestHealth_StoreDown(t *testing.T) {
	s := server.New(nil, brokenStore{}, nil, nil)
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, 0, "GET", "/api/services", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/services", nil)
	req.Header.Set(server.UserHeader, "abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for non-numeric id, got %d", w.Code)
	}
}

func TestIdentity_NonPositiveRejected(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "api", "https://api.example.com")
	f.add(t, bob, "web", "https://web.example.com")

	for _, id := range []string{"0", "-1"} {
		for _, c := range []struct{ method, path string }{
			{"GET", "/api/services"},
			{"DELETE", "/api/services/api"},
		} {
			req := httptest.NewRequest(c.method, c.path, nil)
			req.Header.Set(server.UserHeader, id)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s as %s: expected 401, got %d", c.method, c.path, id, w.Code)
			}
		}
	}

	left, err := f.db.Find(context.Background(), storage.Filter{Owner: alice})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(left) != 1 {
		t.Errorf("expected alice's service to survive, got %d records", len(left))
	}
}

func TestAddService(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, alice, "POST", "/api/services", `{"name":"api","endpoint":"https://api.example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	env := decode[storage.Service](t, w)
	if env.Data.ID == "" || env.Data.Owner != alice || env.Data.Health != storage.HealthUnknown {
		t.Errorf("unexpected service %+v", env.Data)
	}
}

func TestAddService_BadInput(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, alice, "POST", "/api/services", `{`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", w.Code)
	}
	w := f.do(t, alice, "POST", "/api/services", `{"name":"api","endpoint":"ftp://x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad endpoint, got %d", w.Code)
	}
	if env := decode[any](t, w); env.Error == "" {
		t.Error("expected error message")
	}
}

func TestStatus_Scoped(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "a", "https://a.example.com")
	f.add(t, bob, "b", "https://b.example.com")

	env := decode[[]storage.Service](t, f.do(t, alice, "GET", "/api/services", ""))
	if len(env.Data) != 1 || env.Data[0].Name != "a" {
		t.Errorf("expected alice's service only, got %+v", env.Data)
	}

	env = decode[[]storage.Service](t, f.do(t, owner, "GET", "/api/services", ""))
	if len(env.Data) != 2 {
		t.Errorf("expected owner to see 2, got %d", len(env.Data))
	}
}

func TestStatus_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, alice, "GET", "/api/services", "")
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestListAll_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "a", "https://a.example.com")

	w := f.do(t, alice, "GET", "/api/services/all", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if env := decode[any](t, w); env.Data != nil {
		t.Errorf("expected no data, got %v", env.Data)
	}

	env := decode[[]storage.Service](t, f.do(t, owner, "GET", "/api/services/all", ""))
	if len(env.Data) != 1 {
		t.Errorf("expected 1 service, got %d", len(env.Data))
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "api", "https://a.example.com")
	f.add(t, bob, "api", "https://b.example.com")

	env := decode[map[string]int64](t, f.do(t, alice, "DELETE", "/api/services/api", ""))
	if env.Data["removed"] != 1 {
		t.Errorf("expected 1 removed, got %v", env.Data)
	}
	env = decode[map[string]int64](t, f.do(t, owner, "DELETE", "/api/services/api", ""))
	if env.Data["removed"] != 1 {
		t.Errorf("expected owner to remove the remaining one, got %v", env.Data)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.add(t, alice, "api", "https://a.example.com")
	for i, st := range []storage.Health{storage.HealthUp, storage.HealthDown, storage.HealthUp} {
		f.db.InsertCheck(ctx, storage.Check{
			ServiceID: svc.ID,
			Status:    st,
			Attempts:  1,
			CheckedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}

	w := f.do(t, alice, "GET", "/api/services/"+svc.ID+"/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var env envelope[struct {
		Service   storage.Service `json:"service"`
		Checks    []storage.Check `json:"checks"`
		Total     int             `json:"total"`
		UptimePct float64         `json:"uptime_percent"`
	}]
	json.NewDecoder(w.Body).Decode(&env)
	if env.Data.Total != 3 || len(env.Data.Checks) != 2 {
		t.Errorf("expected 2 of 3 checks, got %d of %d", len(env.Data.Checks), env.Data.Total)
	}
	if env.Data.Service.ID != svc.ID {
		t.Errorf("unexpected service %+v", env.Data.Service)
	}
	if env.Data.UptimePct < 66 || env.Data.UptimePct > 67 {
		t.Errorf("expected ~66.7%% uptime, got %v", env.Data.UptimePct)
	}
}

func TestHistory_NotVisible(t *testing.T) {
	f := newFixture(t)
	svc := f.add(t, alice, "api", "https://a.example.com")

	if w := f.do(t, bob, "GET", "/api/services/"+svc.ID+"/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user's service, got %d", w.Code)
	}
	if w := f.do(t, owner, "GET", "/api/services/"+svc.ID+"/history", ""); w.Code != http.StatusOK {
		t.Errorf("expected owner to see history, got %d", w.Code)
	}
}

func TestHistory_InvalidParams(t *testing.T) {
	f := newFixture(t)
	svc := f.add(t, alice, "api", "https://a.example.com")

	for _, q := range []string{"limit=abc", "limit=-1", "offset=x"} {
		w := f.do(t, alice, "GET", "/api/services/"+svc.ID+"/history?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if w := f.do(t, alice, "POST", "/api/control/pause", ""); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", w.Code)
	}
	if w := f.do(t, owner, "POST", "/api/control/pause", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if paused, _ := f.state.Paused(ctx); !paused {
		t.Error("expected paused")
	}

	env := decode[map[string]bool](t, f.do(t, alice, "GET", "/api/control", ""))
	if !env.Data["paused"] {
		t.Errorf("expected paused=true, got %v", env.Data)
	}

	f.do(t, owner, "POST", "/api/control/resume", "")
	if paused, _ := f.state.Paused(ctx); paused {
		t.Error("expected resumed")
	}
}

func TestBans(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, alice, "PUT", "/api/bans/3", ""); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", w.Code)
	}
	if w := f.do(t, owner, "PUT", "/api/bans/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
	if w := f.do(t, owner, "PUT", "/api/bans/1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for banning the owner, got %d", w.Code)
	}
	if w := f.do(t, owner, "PUT", "/api/bans/2", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := f.do(t, alice, "GET", "/api/services", ""); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for banned user, got %d", w.Code)
	}

	if w := f.do(t, owner, "DELETE", "/api/bans/2", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := f.do(t, alice, "GET", "/api/services", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 after unban, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, alice, "GET", "/api/services", "")
	f.do(t, 0, "GET", "/api/services", "")

	if v := testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "200")); v != 1 {
		t.Errorf("expected 1 counted 200, got %v", v)
	}
	if v := testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "401")); v != 1 {
		t.Errorf("expected 1 counted 401, got %v", v)
	}

	w := f.do(t, 0, "GET", "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "uptimebot_http_requests_total") {
		t.Errorf("expected exposition output, got %d", w.Code)
	}
}
