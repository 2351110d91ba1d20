package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/exam-client/internal/errs"
	"github.com/and161185/exam-client/internal/model"
)

type staticTokens string

func (s staticTokens) Load() (string, error) {
	if s == "" {
		return "", errs.ErrNoCredential
	}
	return string(s), nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCall_SuccessAttachesBearerAndHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	gw := NewGateway(srv.URL+"/api/", staticTokens("tok"))
	raw, err := gw.Call(context.Background(), "/question-banks")
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(raw))

	require.Equal(t, "/api/question-banks", got.URL.Path)
	require.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.NotEmpty(t, got.Header.Get("X-Request-ID"))
}

func TestCall_NoTokenNoAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw, err := NewGateway(srv.URL, staticTokens("")).Call(context.Background(), "/auth/login", WithMethod(http.MethodPost))
	require.NoError(t, err)
	require.Equal(t, "null", string(raw))
	require.Empty(t, auth)
}

func TestCall_TokenReadPerCall(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	tok := &mutableTokens{}
	gw := NewGateway(srv.URL, tok)
	_, _ = gw.Call(context.Background(), "/a")
	tok.v = "fresh"
	_, _ = gw.Call(context.Background(), "/a")
	require.Equal(t, []string{"", "Bearer fresh"}, seen)
}

type mutableTokens struct{ v string }

func (m *mutableTokens) Load() (string, error) { return m.v, nil }

func TestCall_ErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", http.StatusBadRequest, `{"error":"Question bank not found"}`, "Question bank not found"},
		{"message field", http.StatusConflict, `{"message":"already exists"}`, "already exists"},
		{"error wins", http.StatusBadRequest, `{"error":"e","message":"m"}`, "e"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "request failed: Bad Gateway"},
		{"empty body", http.StatusInternalServerError, ``, "request failed: Internal Server Error"},
		{"non-string error", http.StatusBadRequest, `{"error":42}`, "request failed: Bad Request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewGateway(srv.URL, nil).Call(context.Background(), "/x")
			var re *errs.RequestError
			require.ErrorAs(t, err, &re)
			require.Equal(t, tc.status, re.Status)
			require.Equal(t, tc.want, re.Message)
		})
	}
}

func TestCall_StatusSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Invalid token"}`)
	}))
	defer srv.Close()

	_, err := NewGateway(srv.URL, nil).Call(context.Background(), "/auth/me")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.False(t, IsConnectivity(err))
}

func TestCall_Connectivity(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}
	_, err := NewGateway("http://backend.invalid/api", nil, WithHTTPClient(client)).Call(context.Background(), "/x")
	require.Error(t, err)
	require.True(t, IsConnectivity(err))
	require.Equal(t, errs.ErrConnectivity.Error(), err.Error())
}

func TestCall_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})}
	_, err := NewGateway("http://backend.invalid", nil, WithHTTPClient(client)).Call(ctx, "/x")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsConnectivity(err))
}

func TestCall_NonJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "plain text")
	}))
	defer srv.Close()

	_, err := NewGateway(srv.URL, nil).Call(context.Background(), "/x")
	require.Error(t, err)
	var re *errs.RequestError
	require.False(t, errors.As(err, &re))
}

func TestCall_ObserverSeesEventAndPanicIsContained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"nope"}`)
	}))
	defer srv.Close()

	var events []CallEvent
	obs := Observers{
		ObserverFunc(func(CallEvent) { panic("boom") }),
		ObserverFunc(func(e CallEvent) { events = append(events, e) }),
	}
	_, err := NewGateway(srv.URL, nil, WithObserver(obs)).Call(context.Background(), "/question-banks/1", WithMethod(http.MethodDelete))
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.Len(t, events, 1)
	ev := events[0]
	require.Equal(t, http.MethodDelete, ev.Method)
	require.Equal(t, "/question-banks/1", ev.Path)
	require.Equal(t, http.StatusNotFound, ev.Status)
	require.Equal(t, "request_error", ev.Outcome())
	require.NotEmpty(t, ev.RequestID)
}

func TestCall_PanickingObserverDoesNotAlterResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	gw := NewGateway(srv.URL, nil, WithObserver(ObserverFunc(func(CallEvent) { panic("boom") })))
	raw, err := gw.Call(context.Background(), "/x")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1"}`, string(raw))
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	o := LogObserver(zap.New(core))

	o.ObserveCall(CallEvent{Method: "GET", Path: "/ok", Status: 200})
	o.ObserveCall(CallEvent{Method: "GET", Path: "/down", Err: &errs.ConnectivityError{Err: errors.New("refused")}})

	require.Equal(t, 1, logs.FilterLevelExact(zap.DebugLevel).Len())
	warn := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warn, 1)
	require.Equal(t, "connectivity", warn[0].ContextMap()["outcome"])
}

func TestEndpoints_DecodeTyped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in model.Credentials
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Username != "alice" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"Login successful","token":"t1","user":{"id":"u1","username":"alice","is_admin":true}}`)
	})
	mux.HandleFunc("/question-banks/b1/questions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"q1","bank_id":"b1","question":"2+2?","options":["3","4"],"answer":[1],"is_multiple":false}]`)
	})
	mux.HandleFunc("/exam-results/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total_exams":2,"avg_score":75.5,"best_score":90,"total_questions_answered":20}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := NewGateway(srv.URL, nil)
	ctx := context.Background()

	resp, err := gw.Login(ctx, model.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "t1", resp.Token)
	require.True(t, resp.User.IsAdmin)

	_, err = gw.Login(ctx, model.Credentials{Username: "bob", Password: "pw"})
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	qs, err := gw.ListQuestions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, model.Answer{"1"}, qs[0].Answer)

	st, err := gw.ExamStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalExams)
	require.InDelta(t, 75.5, st.AvgScore, 0.001)
}

func TestUploadBankFile_Multipart(t *testing.T) {
	var (
		ct       string
		mode     string
		filename string
		partType string
		content  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "multipart/form-data" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(p)
			switch p.FormName() {
			case "parseMode":
				mode = string(b)
			case "file":
				filename = p.FileName()
				partType = p.Header.Get("Content-Type")
				content = string(b)
			}
		}
		_, _ = io.WriteString(w, `{"id":"b1","name":"Bank","questionCount":3,"message":"imported"}`)
	}))
	defer srv.Close()

	gw := NewGateway(srv.URL, staticTokens("tok"))
	res, err := gw.UploadBankFile(context.Background(), "b1", Upload{
		Filename: "/tmp/questions.csv",
		Content:  strings.NewReader("question,a,b\n2+2?,3,4\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.QuestionCount)

	require.True(t, strings.HasPrefix(ct, "multipart/form-data"))
	require.Equal(t, ParseModeFormat, mode)
	require.Equal(t, "questions.csv", filename)
	require.True(t, strings.HasPrefix(partType, "text/"), partType)
	require.Contains(t, content, "2+2?")
}

func TestUploadBankFile_NoContent(t *testing.T) {
	_, err := NewGateway("http://backend.invalid", nil).UploadBankFile(context.Background(), "b1", Upload{Filename: "x.csv"})
	require.Error(t, err)
}
