package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/and161185/exam-client/internal/model"
)

// --- Auth ---

// Register creates an account and returns the issued credential.
func (g *Gateway) Register(ctx context.Context, in model.Registration) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := g.Do(ctx, "/auth/register", &out, WithMethod(http.MethodPost), WithJSON(in)); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a bearer token.
func (g *Gateway) Login(ctx context.Context, in model.Credentials) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := g.Do(ctx, "/auth/login", &out, WithMethod(http.MethodPost), WithJSON(in)); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser fetches the identity behind the persisted token.
func (g *Gateway) CurrentUser(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := g.Do(ctx, "/auth/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Question banks ---

// ListBanks returns the user's banks.
func (g *Gateway) ListBanks(ctx context.Context) ([]model.QuestionBank, error) {
	var out []model.QuestionBank
	if err := g.Do(ctx, "/question-banks", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBank returns one bank with its questions.
func (g *Gateway) GetBank(ctx context.Context, id string) (*model.QuestionBank, error) {
	var out model.QuestionBank
	if err := g.Do(ctx, "/question-banks/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBank creates a bank, optionally with questions.
func (g *Gateway) CreateBank(ctx context.Context, in model.NewBank) (*model.MessageResponse, error) {
	var out model.MessageResponse
	if err := g.Do(ctx, "/question-banks", &out, WithMethod(http.MethodPost), WithJSON(in)); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBank deletes a bank together with its questions and dependent records.
func (g *Gateway) DeleteBank(ctx context.Context, id string) error {
	return g.Do(ctx, "/question-banks/"+url.PathEscape(id), nil, WithMethod(http.MethodDelete))
}

// ListQuestions returns the questions of one bank.
func (g *Gateway) ListQuestions(ctx context.Context, bankID string) ([]model.Question, error) {
	var out []model.Question
	if err := g.Do(ctx, "/question-banks/"+url.PathEscape(bankID)+"/questions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Questions ---

// CreateQuestion adds a question to q.BankID.
func (g *Gateway) CreateQuestion(ctx context.Context, q model.Question) (*model.MessageResponse, error) {
	var out model.MessageResponse
	if err := g.Do(ctx, "/questions", &out, WithMethod(http.MethodPost), WithJSON(q)); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateQuestion replaces the question content.
func (g *Gateway) UpdateQuestion(ctx context.Context, id string, q model.Question) (*model.MessageResponse, error) {
	var out model.MessageResponse
	if err := g.Do(ctx, "/questions/"+url.PathEscape(id), &out, WithMethod(http.MethodPut), WithJSON(q)); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteQuestion removes a question.
func (g *Gateway) DeleteQuestion(ctx context.Context, id string) error {
	return g.Do(ctx, "/questions/"+url.PathEscape(id), nil, WithMethod(http.MethodDelete))
}

// --- Wrong questions ---

// ListWrongQuestions returns the user's wrong-question records.
func (g *Gateway) ListWrongQuestions(ctx context.Context) ([]model.WrongQuestion, error) {
	var out []model.WrongQuestion
	if err := g.Do(ctx, "/wrong-questions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddWrongQuestion records a wrong answer snapshot.
func (g *Gateway) AddWrongQuestion(ctx context.Context, in model.NewWrongQuestion) (*model.MessageResponse, error) {
	var out model.MessageResponse
	if err := g.Do(ctx, "/wrong-questions", &out, WithMethod(http.MethodPost), WithJSON(in)); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveWrongQuestion deletes one record.
func (g *Gateway) RemoveWrongQuestion(ctx context.Context, id string) error {
	return g.Do(ctx, "/wrong-questions/"+url.PathEscape(id), nil, WithMethod(http.MethodDelete))
}

// ClearWrongQuestions deletes every record of the user.
func (g *Gateway) ClearWrongQuestions(ctx context.Context) error {
	return g.Do(ctx, "/wrong-questions", nil, WithMethod(http.MethodDelete))
}

// --- Exam results ---

// SaveExamResult appends a completed exam.
func (g *Gateway) SaveExamResult(ctx context.Context, r model.ExamResult) (*model.MessageResponse, error) {
	var out model.MessageResponse
	if err := g.Do(ctx, "/exam-results", &out, WithMethod(http.MethodPost), WithJSON(r)); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExamStats returns the aggregate over saved results.
func (g *Gateway) ExamStats(ctx context.Context) (*model.ExamStats, error) {
	var out model.ExamStats
	if err := g.Do(ctx, "/exam-results/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
