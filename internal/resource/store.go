// Package resource keeps client-side caches of backend collections consistent with server mutations.
//
// Caches are refreshed by full reload after every successful mutation. Reads are fail-soft
// (the cache is emptied and the user notified), writes are fail-loud (notified and returned).
// Each family carries a request sequence so that only the most recently initiated load is applied.
package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/api"
	"github.com/and161185/exam-client/internal/model"
	"github.com/and161185/exam-client/internal/notify"
)

// Gateway is the subset of the backend API used by the store.
type Gateway interface {
	ListBanks(ctx context.Context) ([]model.QuestionBank, error)
	GetBank(ctx context.Context, id string) (*model.QuestionBank, error)
	CreateBank(ctx context.Context, in model.NewBank) (*model.MessageResponse, error)
	DeleteBank(ctx context.Context, id string) error
	UploadBankFile(ctx context.Context, bankID string, up api.Upload) (*model.UploadResult, error)

	ListQuestions(ctx context.Context, bankID string) ([]model.Question, error)
	CreateQuestion(ctx context.Context, q model.Question) (*model.MessageResponse, error)
	UpdateQuestion(ctx context.Context, id string, q model.Question) (*model.MessageResponse, error)
	DeleteQuestion(ctx context.Context, id string) error

	ListWrongQuestions(ctx context.Context) ([]model.WrongQuestion, error)
	AddWrongQuestion(ctx context.Context, in model.NewWrongQuestion) (*model.MessageResponse, error)
	RemoveWrongQuestion(ctx context.Context, id string) error
	ClearWrongQuestions(ctx context.Context) error

	SaveExamResult(ctx context.Context, r model.ExamResult) (*model.MessageResponse, error)
	ExamStats(ctx context.Context) (*model.ExamStats, error)
}

// Family names a cached collection.
type Family string

const (
	Banks          Family = "banks"
	WrongQuestions Family = "wrong-questions"
	ExamResults    Family = "exam-results"
	Questions      Family = "questions"
)

// Event is delivered to subscribers after every applied cache change.
type Event struct {
	Family Family
	BankID string // set for Questions
	Count  int
}

// Exam is the exam currently being taken. It is not cached on the server.
type Exam struct {
	BankID    string
	Title     string
	Questions []model.Question
	WrongOnly bool
	StartedAt time.Time
}

// Store owns the caches. Safe for concurrent use.
type Store struct {
	gw       Gateway
	notifier notify.Notifier
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	banks     []model.QuestionBank
	wrong     []model.WrongQuestion
	stats     *model.ExamStats
	questions map[string][]model.Question
	current   *Exam
	issued    map[string]uint64
	applied   map[string]uint64

	inflight atomic.Int32

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where success and error messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns an empty store.
func New(gw Gateway, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		notifier:  notify.Nop{},
		validate:  validator.New(),
		log:       zap.NewNop(),
		now:       time.Now,
		questions: make(map[string][]model.Question),
		issued:    make(map[string]uint64),
		applied:   make(map[string]uint64),
		subs:      make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn for cache changes and returns a function that removes it.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Loading reports whether any load or mutation is in flight.
func (s *Store) Loading() bool { return s.inflight.Load() > 0 }

func (s *Store) track() func() {
	s.inflight.Add(1)
	return func() { s.inflight.Add(-1) }
}

// Reset empties every cache and discards responses of requests already in flight.
func (s *Store) Reset() {
	s.mu.Lock()
	s.banks = nil
	s.wrong = nil
	s.stats = nil
	s.questions = make(map[string][]model.Question)
	s.current = nil
	for k, v := range s.issued {
		s.applied[k] = v
	}
	s.mu.Unlock()

	s.emit(Event{Family: Banks})
	s.emit(Event{Family: WrongQuestions})
	s.emit(Event{Family: ExamResults})
}

// --- Getters: pure lookups over the cache, no I/O. ---

// Banks returns a copy of the cached banks.
func (s *Store) Banks() []model.QuestionBank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.QuestionBank(nil), s.banks...)
}

// BankByID looks a bank up in the cache.
func (s *Store) BankByID(id string) (model.QuestionBank, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.banks {
		if b.ID == id {
			return b, true
		}
	}
	return model.QuestionBank{}, false
}

// WrongQuestions returns a copy of the cached wrong questions.
func (s *Store) WrongQuestions() []model.WrongQuestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.WrongQuestion(nil), s.wrong...)
}

// WrongByBank filters the cached wrong questions by bank.
func (s *Store) WrongByBank(bankID string) []model.WrongQuestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WrongQuestion
	for _, w := range s.wrong {
		if w.BankID == bankID {
			out = append(out, w)
		}
	}
	return out
}

// Questions returns the cached questions of a bank.
func (s *Store) Questions(bankID string) []model.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Question(nil), s.questions[bankID]...)
}

// ExamStats returns the cached statistics snapshot, nil when not loaded or failed.
func (s *Store) ExamStats() *model.ExamStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return nil
	}
	st := *s.stats
	return &st
}

// CurrentExam returns the exam in progress, if any.
func (s *Store) CurrentExam() *Exam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrentExam replaces the exam in progress. A nil exam clears it.
func (s *Store) SetCurrentExam(e *Exam) {
	if e != nil && e.StartedAt.IsZero() {
		e.StartedAt = s.now()
	}
	s.mu.Lock()
	s.current = e
	s.mu.Unlock()
}
