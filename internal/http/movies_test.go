package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movies-api/internal/config"
	"github.com/Clark-Hu/movies-api/internal/domain"
	"github.com/Clark-Hu/movies-api/internal/repository"
)

// newUnavailableServer builds a server without a store, which is how the API
// behaves before the movies collection exists.
func newUnavailableServer(tb testing.TB) *Server {
	tb.Helper()
	srv := New(config.Config{Port: "0", MaxBatchSize: 3}, nil, log.New(io.Discard, "", 0))
	srv.router = chi.NewRouter()
	srv.registerRoutes()
	return srv
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUnavailableStore(t *testing.T) {
	srv := newUnavailableServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"list", http.MethodGet, "/movies", "", http.StatusNotFound},
		{"get", http.MethodGet, "/movies/1", "", http.StatusNotFound},
		{"delete", http.MethodDelete, "/movies/1", "", http.StatusNotFound},
		{"create", http.MethodPost, "/movies", `[{"title":"A"}]`, http.StatusInternalServerError},
		{"update", http.MethodPut, "/movies/1", `{"id":1,"title":"A"}`, http.StatusInternalServerError},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s status = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
			}
		})
	}
}

func TestBadRequestsNeverReachStore(t *testing.T) {
	// A nil store would answer 404/500; a 400 proves validation ran first.
	srv := newUnavailableServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"create empty array", http.MethodPost, "/movies", `[]`},
		{"create null", http.MethodPost, "/movies", `null`},
		{"create absent body", http.MethodPost, "/movies", ""},
		{"create malformed", http.MethodPost, "/movies", `[{"title":`},
		{"create object instead of array", http.MethodPost, "/movies", `{"title":"A"}`},
		{"create unknown field", http.MethodPost, "/movies", `[{"title":"A","rating":5}]`},
		{"create bad date", http.MethodPost, "/movies", `[{"title":"A","releaseDate":"16/07/2010"}]`},
		{"create over limit", http.MethodPost, "/movies", `[{},{},{},{}]`},
		{"create trailing garbage", http.MethodPost, "/movies", `[{"title":"A"}] garbage`},
		{"create second value", http.MethodPost, "/movies", `[{"title":"A"}][{"title":"B"}]`},
		{"update trailing object", http.MethodPut, "/movies/1", `{"id":1,"title":"X"} {}`},
		{"update id mismatch", http.MethodPut, "/movies/1", `{"Id":2,"Title":"X"}`},
		{"update missing body id", http.MethodPut, "/movies/1", `{"title":"X"}`},
		{"update empty body", http.MethodPut, "/movies/1", ""},
		{"update non-numeric id", http.MethodPut, "/movies/abc", `{"id":1}`},
		{"get non-numeric id", http.MethodGet, "/movies/abc", ""},
		{"delete non-numeric id", http.MethodDelete, "/movies/1.5", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Code != "BAD_REQUEST" || resp.Message == "" {
				t.Fatalf("error body = %+v", resp)
			}
		})
	}
}

func TestTrailingWhitespaceIsAccepted(t *testing.T) {
	srv := newUnavailableServer(t)
	// Validation passes, so the missing store answers 500.
	rec := serve(srv, http.MethodPost, "/movies", "[{\"title\":\"A\"}]\n\t ")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestRespondUpdateResult(t *testing.T) {
	srv := newUnavailableServer(t)

	tests := []struct {
		result   repository.UpdateResult
		err      error
		want     int
		wantCode string
	}{
		{repository.UpdateApplied, nil, http.StatusNoContent, ""},
		{repository.UpdateNotFound, repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{repository.UpdateConflict, fmt.Errorf("update movie 1: %w", repository.ErrConflict), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{repository.UpdateFailed, errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.respondUpdateResult(rec, 1, tt.result, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.wantCode == "" {
				if rec.Body.Len() != 0 {
					t.Fatalf("unexpected body %q", rec.Body.String())
				}
				return
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestEmptyBatchMessage(t *testing.T) {
	srv := newUnavailableServer(t)
	rec := serve(srv, http.MethodPost, "/movies", `[]`)

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != errEmptyBatch.Error() {
		t.Fatalf("message = %q, want %q", resp.Message, errEmptyBatch.Error())
	}
}

func TestBuildCreateParams(t *testing.T) {
	date := "2010-07-16"
	blank := "  "
	params, err := buildCreateParams([]movieRequest{
		{ID: 99, Title: "Inception", Genre: "Sci-Fi", ReleaseDate: &date},
		{Title: "Untitled", ReleaseDate: &blank},
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("len = %d, want 2", len(params))
	}
	if params[0].ReleaseDate == nil || !params[0].ReleaseDate.Equal(time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("release date = %v", params[0].ReleaseDate)
	}
	if params[1].ReleaseDate != nil {
		t.Fatalf("blank release date should be nil, got %v", params[1].ReleaseDate)
	}

	if _, err := buildCreateParams(nil, 0); err != errEmptyBatch {
		t.Fatalf("nil batch error = %v, want errEmptyBatch", err)
	}
	if _, err := buildCreateParams(make([]movieRequest, 5), 4); err == nil {
		t.Fatalf("expected error for oversized batch")
	}
}

func TestToMovieResponse(t *testing.T) {
	date := time.Date(1999, time.March, 31, 0, 0, 0, 0, time.UTC)
	resp := toMovieResponse(domain.Movie{ID: 7, Title: "The Matrix", Genre: "Sci-Fi", ReleaseDate: &date})
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":7,"title":"The Matrix","genre":"Sci-Fi","releaseDate":"1999-03-31"}`
	if string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}

	payload, _ = json.Marshal(toMovieResponse(domain.Movie{ID: 8, Title: "Undated"}))
	if bytes.Contains(payload, []byte("releaseDate")) {
		t.Fatalf("releaseDate should be omitted: %s", payload)
	}

	if items := toMovieResponses(nil); items == nil || len(items) != 0 {
		t.Fatalf("toMovieResponses(nil) = %#v, want empty slice", items)
	}
}

func TestDecodeIDParam(t *testing.T) {
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"9223372036854775807", 9223372036854775807, false},
		{"-3", -3, false},
		{"", 0, true},
		{"abc", 0, true},
		{"9223372036854775808", 0, true},
	}
	for _, c := range cases {
		req := attachIDParam(httptest.NewRequest(http.MethodGet, "/movies/x", nil), c.raw)
		got, err := decodeIDParam(req)
		if (err != nil) != c.wantErr || got != c.want {
			t.Fatalf("decodeIDParam(%q) = %d, %v; want %d, err=%v", c.raw, got, err, c.want, c.wantErr)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(1, 2, log.New(io.Discard, "", 0))
	limiter.now = func() time.Time { return now }

	handler := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/movies", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("10.0.0.1:1000"); code != http.StatusNoContent {
		t.Fatalf("first call = %d", code)
	}
	if code := call("10.0.0.1:1001"); code != http.StatusNoContent {
		t.Fatalf("second call = %d", code)
	}
	if code := call("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("third call = %d, want 429", code)
	}
	if code := call("10.0.0.2"); code != http.StatusNoContent {
		t.Fatalf("other client = %d, want 204", code)
	}

	now = now.Add(clientIdleTTL + time.Second)
	if code := call("10.0.0.1:1003"); code != http.StatusNoContent {
		t.Fatalf("after idle = %d, want 204", code)
	}
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.clients["10.0.0.2"]; ok {
		t.Fatalf("idle client should have been evicted")
	}
}

func TestRateLimiterSweepsOncePerIdleWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	limiter := newRateLimiter(100, 100, log.New(io.Discard, "", 0))
	limiter.now = func() time.Time { return now }

	limiter.allow("a")
	if !limiter.lastSweep.Equal(start) {
		t.Fatalf("first call should sweep, lastSweep = %v", limiter.lastSweep)
	}

	now = start.Add(clientIdleTTL / 2)
	limiter.allow("b")
	if !limiter.lastSweep.Equal(start) {
		t.Fatalf("no sweep expected inside the idle window, lastSweep = %v", limiter.lastSweep)
	}

	// "a" is idle past the TTL but stays until the next sweep is due.
	now = start.Add(clientIdleTTL + time.Second)
	limiter.mu.Lock()
	limiter.lastSweep = now.Add(-time.Second)
	limiter.mu.Unlock()
	limiter.allow("b")
	if _, ok := limiter.clients["a"]; !ok {
		t.Fatalf("client a evicted before its sweep was due")
	}

	now = now.Add(clientIdleTTL + time.Second)
	limiter.allow("c")
	if _, ok := limiter.clients["a"]; ok {
		t.Fatalf("client a should be evicted once a sweep runs")
	}
	if _, ok := limiter.clients["c"]; !ok {
		t.Fatalf("current client missing after sweep")
	}
	if !limiter.lastSweep.Equal(now) {
		t.Fatalf("lastSweep = %v, want %v", limiter.lastSweep, now)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	before := totalResponsesSent.Value()
	handler := metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := totalResponsesSent.Value(); got != before+1 {
		t.Fatalf("total_responses_sent = %d, want %d", got, before+1)
	}
	if v := totalResponsesSentByStatus.Get("418"); v == nil {
		t.Fatalf("status 418 not counted")
	}
}

func attachIDParam(req *http.Request, id string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}
