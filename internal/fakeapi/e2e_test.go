package fakeapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/exam-client/internal/api"
	"github.com/and161185/exam-client/internal/credstore"
	"github.com/and161185/exam-client/internal/fakeapi"
	"github.com/and161185/exam-client/internal/model"
	"github.com/and161185/exam-client/internal/notify"
	"github.com/and161185/exam-client/internal/resource"
	"github.com/and161185/exam-client/internal/session"
)

type client struct {
	srv      *fakeapi.Server
	gw       *api.Gateway
	session  *session.Store
	res      *resource.Store
	notifier *notify.Recorder
}

func newClient(t *testing.T) *client {
	t.Helper()
	srv, err := fakeapi.New(fakeapi.Config{
		SignKey:       []byte("e2e"),
		AdminUsername: "admin",
		AdminPassword: "123456",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	creds := credstore.NewMemory("")
	gw := api.NewGateway(ts.URL+"/api", creds)
	rec := &notify.Recorder{}
	return &client{
		srv:      srv,
		gw:       gw,
		session:  session.New(gw, creds, session.WithNotifier(rec)),
		res:      resource.New(gw, resource.WithNotifier(rec)),
		notifier: rec,
	}
}

func TestEndToEnd_BankLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.session.Register(ctx, model.Registration{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.True(t, c.session.IsLoggedIn())

	created, err := c.res.CreateBank(ctx, model.NewBank{
		Name: "Geography",
		Questions: []model.Question{{
			Question: "Capital of France?",
			Options:  []string{"Rome", "Paris"},
			Answer:   model.Single("1"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, c.res.Banks(), 1)
	require.Equal(t, 1, c.res.Banks()[0].QuestionCount)
	require.Equal(t, 1, c.srv.Hits(http.MethodGet, "/api/question-banks"))

	bankID := created.ID
	require.NoError(t, c.res.LoadQuestions(ctx, bankID))
	qs := c.res.Questions(bankID)
	require.Len(t, qs, 1)

	added, err := c.res.AddWrongQuestion(ctx, bankID, qs[0])
	require.NoError(t, err)
	require.True(t, added)
	added, err = c.res.AddWrongQuestion(ctx, bankID, qs[0])
	require.NoError(t, err)
	require.False(t, added)
	require.Len(t, c.res.WrongQuestions(), 1)
	require.Equal(t, "Geography", c.res.WrongQuestions()[0].BankName)

	_, err = c.res.SaveExamResult(ctx, model.ExamResult{BankID: bankID, Score: 80, CorrectCount: 4, WrongCount: 1, TotalQuestions: 5})
	require.NoError(t, err)
	_, err = c.res.SaveExamResult(ctx, model.ExamResult{BankID: bankID, Score: 60, CorrectCount: 3, WrongCount: 2, TotalQuestions: 5})
	require.NoError(t, err)
	st := c.res.ExamStats()
	require.NotNil(t, st)
	require.Equal(t, 2, st.TotalExams)
	require.Equal(t, 80, st.BestScore)
	require.InDelta(t, 70.0, st.AvgScore, 0.001)
	require.Equal(t, 10, st.TotalQuestionsAnswered)

	require.NoError(t, c.res.DeleteBank(ctx, bankID))
	require.Empty(t, c.res.Banks())
	require.Empty(t, c.res.WrongQuestions())
	require.Nil(t, c.res.Questions(bankID))
}

func TestEndToEnd_UploadCSV(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.session.Register(ctx, model.Registration{Username: "bob", Password: "pw"})
	require.NoError(t, err)

	created, err := c.res.CreateBank(ctx, model.NewBank{Name: "Imported"})
	require.NoError(t, err)

	csv := "question,answer,A,B,C\n2+2?,B,3,4,5\nPrimes?,\"A,C\",2,4,5\n"
	res, err := c.res.UploadBankFile(ctx, created.ID, api.Upload{Filename: "bank.csv", Content: strings.NewReader(csv)})
	require.NoError(t, err)
	require.Equal(t, 2, res.QuestionCount)

	bank, err := c.res.BankDetails(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, bank.Questions, 2)
	require.True(t, bank.Questions[1].IsMultiple)

	_, err = c.res.UploadBankFile(ctx, created.ID, api.Upload{Filename: "scan.pdf", Content: strings.NewReader("%PDF-1.4")})
	require.Error(t, err)
}

func TestEndToEnd_RestoreAndLogout(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.session.Login(ctx, model.Credentials{Username: "admin", Password: "123456"})
	require.NoError(t, err)
	require.True(t, c.session.IsAdmin())

	// a second process sharing the credential store restores the identity
	creds := credstore.NewMemory(c.session.Token())
	restored := session.New(api.NewGateway(c.gw.BaseURL(), creds), creds)
	require.True(t, restored.HasPendingRestore())
	require.NoError(t, restored.Restore(ctx))
	require.Equal(t, "admin", restored.User().Username)

	users, err := c.gw.AdminUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	c.session.Logout()
	require.False(t, c.session.IsLoggedIn())
	require.Contains(t, c.notifier.Successes(), "logged out")
}

func TestEndToEnd_WrongPasswordKeepsAnonymous(t *testing.T) {
	c := newClient(t)
	_, err := c.session.Login(context.Background(), model.Credentials{Username: "admin", Password: "nope"})
	require.Error(t, err)
	require.Equal(t, session.Anonymous, c.session.State())
	require.NotEmpty(t, c.notifier.Errors())
}
