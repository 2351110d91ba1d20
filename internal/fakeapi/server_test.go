package fakeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/exam-client/internal/limiter"
	"github.com/and161185/exam-client/internal/model"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.SignKey == nil {
		cfg.SignKey = []byte("test-key")
	}
	s, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func TestNew_RequiresSignKey(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestLogin_SeededAdmin(t *testing.T) {
	s := newTestServer(t, Config{AdminUsername: "admin", AdminPassword: "123456"})
	h := s.Handler()

	rr, out := do(t, h, http.MethodPost, "/api/auth/login", "", model.Credentials{Username: "admin", Password: "123456"})
	require.Equal(t, http.StatusOK, rr.Code)
	tok, _ := out["token"].(string)
	require.NotEmpty(t, tok)

	rr, out = do(t, h, http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "admin", out["username"])
	require.Equal(t, true, out["is_admin"])

	rr, _ = do(t, h, http.MethodGet, "/api/admin/stats", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, s.Hits(http.MethodGet, "/api/admin/stats"))
}

func TestRequireAuth(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()

	rr, out := do(t, h, http.MethodGet, "/api/question-banks", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Invalid token", out["error"])

	rr, _ = do(t, h, http.MethodGet, "/api/question-banks", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// valid signature, unknown subject
	tok, err := s.issueAccessToken("ghost")
	require.NoError(t, err)
	rr, out = do(t, h, http.MethodGet, "/api/question-banks", tok, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "User not found", out["error"])
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	s := newTestServer(t, Config{AccessTTL: time.Minute})
	h := s.Handler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	rr, out := do(t, h, http.MethodPost, "/api/auth/register", "", model.Registration{Username: "bob", Password: "pw"})
	require.Equal(t, http.StatusOK, rr.Code)
	tok := out["token"].(string)

	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	rr, _ = do(t, h, http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAdmin(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()
	_, out := do(t, h, http.MethodPost, "/api/auth/register", "", model.Registration{Username: "carol", Password: "pw"})

	rr, body := do(t, h, http.MethodGet, "/api/admin/users", out["token"].(string), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "Admin privileges required", body["error"])
}

func TestRegister_DuplicateUsername(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()
	in := model.Registration{Username: "dave", Password: "pw"}

	rr, _ := do(t, h, http.MethodPost, "/api/auth/register", "", in)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, out := do(t, h, http.MethodPost, "/api/auth/register", "", in)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Username already exists", out["error"])
}

func TestLogin_Throttled(t *testing.T) {
	s := newTestServer(t, Config{Limiter: limiter.NewMemory(time.Minute, 2, time.Minute)})
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/auth/register", "", model.Registration{Username: "eve", Password: "right"})

	bad := model.Credentials{Username: "eve", Password: "wrong"}
	for i := 0; i < 2; i++ {
		rr, _ := do(t, h, http.MethodPost, "/api/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr, out := do(t, h, http.MethodPost, "/api/auth/login", "", model.Credentials{Username: "eve", Password: "right"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, out["error"], "Too many")
}

func TestWrongQuestion_DuplicateIsAcknowledged(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()
	_, out := do(t, h, http.MethodPost, "/api/auth/register", "", model.Registration{Username: "fay", Password: "pw"})
	tok := out["token"].(string)

	in := model.NewWrongQuestion{BankID: "b1", QuestionID: "q1", Question: "2+2?", Answer: model.Single("1")}
	rr, first := do(t, h, http.MethodPost, "/api/wrong-questions", tok, in)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, second := do(t, h, http.MethodPost, "/api/wrong-questions", tok, in)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Wrong question already exists", second["message"])
	require.Equal(t, first["id"], second["id"])
}

func TestLoggingMiddleware_WritesRequestLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(logging(zap.New(core)))
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/things/7", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/things/{id}", fields["route"])
	require.EqualValues(t, http.StatusTeapot, fields["status"])
	require.Equal(t, "rid-1", fields["request_id"])
}

func TestRecoverer_CatchesPanic(t *testing.T) {
	h := recoverer(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oh no")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), `"error":"internal"`)
}

func TestRecoverer_AbortHandlerPropagates(t *testing.T) {
	h := recoverer(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestAuthCtx_RoundTrip(t *testing.T) {
	ctx := withUserID(context.Background(), "u-1")
	id, ok := userIDFromCtx(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", id)

	_, ok = userIDFromCtx(context.Background())
	require.False(t, ok)
}

func TestParseCSV(t *testing.T) {
	in := "\ufeffquestion,answer,A,B,C,D,explanation\n" +
		"Capital of France?,B,Rome,Paris,Berlin,,Paris it is\n" +
		"Pick primes,\"A,C\",2,4,5,6,\n" +
		"Water is wet,正确,,,,,\n" +
		"Too few options,A,only,,,,\n"

	qs, err := parseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, qs, 3)

	require.Equal(t, []string{"Rome", "Paris", "Berlin"}, qs[0].Options)
	require.Equal(t, model.Answer{"1"}, qs[0].Answer)
	require.Equal(t, "Paris it is", qs[0].Explanation)
	require.False(t, qs[0].IsMultiple)

	require.Equal(t, model.Answer{"0", "2"}, qs[1].Answer)
	require.True(t, qs[1].IsMultiple)

	require.Equal(t, "judgment", qs[2].Type)
	require.Equal(t, model.Answer{"1"}, qs[2].Answer)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := parseCSV(strings.NewReader("question,answer\n"))
	require.Error(t, err)

	_, err = parseCSV(strings.NewReader("question,answer,A,B\nQ,Z,x,y\n"))
	require.ErrorContains(t, err, "row 2")
}

func TestParseFile_RejectsUnstructuredFormats(t *testing.T) {
	for _, name := range []string{"bank.pdf", "bank.doc", "bank.txt"} {
		if _, err := parseFile(name, strings.NewReader("x")); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
