package resource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/api"
	"github.com/and161185/exam-client/internal/errs"
	"github.com/and161185/exam-client/internal/model"
)

// fail notifies the user about a failed write and hands the error back.
func (s *Store) fail(what string, err error) error {
	s.log.Warn(what, zap.Error(err))
	s.notifier.Error(what + ": " + errs.Message(err))
	return err
}

func (s *Store) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s is %s", errs.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", errs.ErrValidation, err)
}

// CreateBank creates a bank and reloads the bank collection.
func (s *Store) CreateBank(ctx context.Context, in model.NewBank) (*model.MessageResponse, error) {
	defer s.track()()
	if err := s.check(in); err != nil {
		return nil, s.fail("failed to create bank", err)
	}
	resp, err := s.gw.CreateBank(ctx, in)
	if err != nil {
		return nil, s.fail("failed to create bank", err)
	}
	_ = s.LoadBanks(ctx)
	s.notifier.Success("bank created")
	return resp, nil
}

// UploadBankFile imports a file into a bank and reloads the bank collection.
func (s *Store) UploadBankFile(ctx context.Context, bankID string, up api.Upload) (*model.UploadResult, error) {
	defer s.track()()
	res, err := s.gw.UploadBankFile(ctx, bankID, up)
	if err != nil {
		return nil, s.fail("failed to upload bank file", err)
	}
	_ = s.LoadBanks(ctx)
	msg := "bank file uploaded"
	if res != nil && res.Message != "" {
		msg = res.Message
	}
	s.notifier.Success(msg)
	return res, nil
}

// DeleteBank deletes a bank, then reloads banks and wrong questions, in that order.
func (s *Store) DeleteBank(ctx context.Context, id string) error {
	defer s.track()()
	if err := s.gw.DeleteBank(ctx, id); err != nil {
		return s.fail("failed to delete bank", err)
	}

	s.mu.Lock()
	delete(s.questions, id)
	if s.current != nil && s.current.BankID == id {
		s.current = nil
	}
	s.mu.Unlock()

	_ = s.LoadBanks(ctx)
	_ = s.LoadWrongQuestions(ctx)
	s.notifier.Success("bank deleted")
	return nil
}

// CreateQuestion adds a question to q.BankID and reloads that bank's questions.
func (s *Store) CreateQuestion(ctx context.Context, q model.Question) (*model.MessageResponse, error) {
	defer s.track()()
	if strings.TrimSpace(q.BankID) == "" {
		return nil, s.fail("failed to add question", fmt.Errorf("%w: bank id is required", errs.ErrValidation))
	}
	resp, err := s.gw.CreateQuestion(ctx, q)
	if err != nil {
		return nil, s.fail("failed to add question", err)
	}
	_ = s.LoadQuestions(ctx, q.BankID)
	return resp, nil
}

// UpdateQuestion replaces a question and reloads its bank's questions.
// An empty q.BankID is filled from the cached bank holding id.
func (s *Store) UpdateQuestion(ctx context.Context, id string, q model.Question) (*model.MessageResponse, error) {
	defer s.track()()
	if strings.TrimSpace(q.BankID) == "" {
		q.BankID = s.bankOf(id)
	}
	if q.BankID == "" {
		return nil, s.fail("failed to update question", fmt.Errorf("%w: bank id is required", errs.ErrValidation))
	}
	resp, err := s.gw.UpdateQuestion(ctx, id, q)
	if err != nil {
		return nil, s.fail("failed to update question", err)
	}
	_ = s.LoadQuestions(ctx, q.BankID)
	return resp, nil
}

func (s *Store) bankOf(questionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for bank, qs := range s.questions {
		for _, q := range qs {
			if q.ID == questionID {
				return bank
			}
		}
	}
	return ""
}

// DeleteQuestion removes a question and reloads its bank's questions.
func (s *Store) DeleteQuestion(ctx context.Context, bankID, id string) error {
	defer s.track()()
	if err := s.gw.DeleteQuestion(ctx, id); err != nil {
		return s.fail("failed to delete question", err)
	}
	_ = s.LoadQuestions(ctx, bankID)
	s.notifier.Success("question deleted")
	return nil
}

// WrongQuestionPayload snapshots q for the wrong-question collection.
func (s *Store) WrongQuestionPayload(bankID string, q model.Question) (model.NewWrongQuestion, error) {
	var in model.NewWrongQuestion
	if err := copier.CopyWithOption(&in, &q, copier.Option{DeepCopy: true}); err != nil {
		return in, err
	}
	if bankID != "" {
		in.BankID = bankID
	}
	in.QuestionID = q.ID
	if in.QuestionID == "" {
		in.QuestionID = strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	return in, nil
}

// AddWrongQuestion marks q as answered wrong. Adding a record that already exists is a
// silent no-op: added is false, no error is returned and the cache is left as is.
func (s *Store) AddWrongQuestion(ctx context.Context, bankID string, q model.Question) (added bool, err error) {
	defer s.track()()
	in, err := s.WrongQuestionPayload(bankID, q)
	if err != nil {
		return false, s.fail("failed to add wrong question", err)
	}

	resp, err := s.gw.AddWrongQuestion(ctx, in)
	if err != nil {
		if errs.IsDuplicateInsert(err) {
			s.log.Debug("wrong question already recorded", zap.String("question", in.QuestionID))
			return false, nil
		}
		return false, s.fail("failed to add wrong question", err)
	}
	if resp != nil && errs.IsDuplicateMessage(resp.Message) {
		s.log.Debug("wrong question already recorded", zap.String("question", in.QuestionID))
		return false, nil
	}
	_ = s.LoadWrongQuestions(ctx)
	return true, nil
}

// RemoveWrongQuestion deletes one record and reloads the collection.
func (s *Store) RemoveWrongQuestion(ctx context.Context, id string) error {
	defer s.track()()
	if err := s.gw.RemoveWrongQuestion(ctx, id); err != nil {
		return s.fail("failed to remove wrong question", err)
	}
	_ = s.LoadWrongQuestions(ctx)
	return nil
}

// ClearWrongQuestions deletes every record and reloads the collection.
func (s *Store) ClearWrongQuestions(ctx context.Context) error {
	defer s.track()()
	if err := s.gw.ClearWrongQuestions(ctx); err != nil {
		return s.fail("failed to clear wrong questions", err)
	}
	_ = s.LoadWrongQuestions(ctx)
	s.notifier.Success("wrong questions cleared")
	return nil
}

// SaveExamResult appends a result and reloads the statistics.
func (s *Store) SaveExamResult(ctx context.Context, r model.ExamResult) (*model.MessageResponse, error) {
	defer s.track()()
	resp, err := s.gw.SaveExamResult(ctx, r)
	if err != nil {
		return nil, s.fail("failed to save exam result", err)
	}
	_ = s.LoadExamStats(ctx)
	return resp, nil
}
