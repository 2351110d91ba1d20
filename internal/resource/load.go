package resource

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/exam-client/internal/errs"
	"github.com/and161185/exam-client/internal/model"
)

func questionsKey(bankID string) string { return string(Questions) + ":" + bankID }

// begin issues the next sequence number for key.
func (s *Store) begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[key]++
	return s.issued[key]
}

// acceptLocked reports whether a response for seq is newer than the last one applied.
func (s *Store) acceptLocked(key string, seq uint64) bool {
	if seq <= s.applied[key] {
		return false
	}
	s.applied[key] = seq
	return true
}

// load runs fetch and applies its result under the family sequence. On failure the cache
// is reset through apply with the zero value and the user is notified.
func load[T any](ctx context.Context, s *Store, key, what string, ev Event,
	fetch func(context.Context) (T, error), apply func(T) int) error {
	defer s.track()()
	seq := s.begin(key)

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		v = zero
	}

	s.mu.Lock()
	if !s.acceptLocked(key, seq) {
		s.mu.Unlock()
		s.log.Debug("stale response discarded", zap.String("family", key), zap.Uint64("seq", seq))
		return err
	}
	ev.Count = apply(v)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("load failed", zap.String("family", key), zap.Error(err))
		s.notifier.Error("failed to load " + what + ": " + errs.Message(err))
	}
	s.emit(ev)
	return err
}

// LoadBanks reloads the bank collection. On failure the collection is emptied.
func (s *Store) LoadBanks(ctx context.Context) error {
	return load(ctx, s, string(Banks), "question banks", Event{Family: Banks},
		s.gw.ListBanks,
		func(v []model.QuestionBank) int {
			s.banks = v
			return len(v)
		})
}

// LoadWrongQuestions reloads the wrong-question collection. On failure the collection is emptied.
func (s *Store) LoadWrongQuestions(ctx context.Context) error {
	return load(ctx, s, string(WrongQuestions), "wrong questions", Event{Family: WrongQuestions},
		s.gw.ListWrongQuestions,
		func(v []model.WrongQuestion) int {
			s.wrong = v
			return len(v)
		})
}

// LoadExamStats reloads the exam-result statistics. On failure the snapshot is cleared.
func (s *Store) LoadExamStats(ctx context.Context) error {
	return load(ctx, s, string(ExamResults), "exam statistics", Event{Family: ExamResults},
		s.gw.ExamStats,
		func(v *model.ExamStats) int {
			s.stats = v
			if v == nil {
				return 0
			}
			return v.TotalExams
		})
}

// LoadQuestions reloads the questions of one bank. On failure that bank's list is emptied.
func (s *Store) LoadQuestions(ctx context.Context, bankID string) error {
	return load(ctx, s, questionsKey(bankID), "questions", Event{Family: Questions, BankID: bankID},
		func(ctx context.Context) ([]model.Question, error) { return s.gw.ListQuestions(ctx, bankID) },
		func(v []model.Question) int {
			if v == nil {
				delete(s.questions, bankID)
			} else {
				s.questions[bankID] = v
			}
			return len(v)
		})
}

// Refresh reloads banks, wrong questions and statistics concurrently.
// Every family is reloaded even when another fails; the first error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.LoadBanks(ctx) })
	g.Go(func() error { return s.LoadWrongQuestions(ctx) })
	g.Go(func() error { return s.LoadExamStats(ctx) })
	return g.Wait()
}

// BankDetails fetches a bank with its questions without touching the cache.
func (s *Store) BankDetails(ctx context.Context, id string) (*model.QuestionBank, error) {
	defer s.track()()
	b, err := s.gw.GetBank(ctx, id)
	if err != nil {
		s.notifier.Error("failed to load bank details: " + errs.Message(err))
		return nil, err
	}
	return b, nil
}
