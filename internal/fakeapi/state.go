package fakeapi

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/exam-client/internal/model"
)

var (
	errUserExists = errors.New("Username already exists")
	errNoBank     = errors.New("Question bank not found")
	errNoQuestion = errors.New("Question not found")
	errNoRecord   = errors.New("Wrong question not found")
	errNoUser     = errors.New("User not found")
)

type account struct {
	model.User
	pw passwordHash
}

type result struct {
	userID string
	model.ExamResult
}

// data is the in-memory backend state. All methods are safe for concurrent use.
type data struct {
	mu        sync.RWMutex
	now       func() time.Time
	users     map[string]*account
	byName    map[string]string
	banks     map[string]*model.QuestionBank
	questions map[string]*model.Question
	order     []string // question ids in insertion order
	wrong     map[string]*model.WrongQuestion
	results   []result
	settings  model.Settings
}

func newData(now func() time.Time) *data {
	return &data{
		now:       now,
		users:     make(map[string]*account),
		byName:    make(map[string]string),
		banks:     make(map[string]*model.QuestionBank),
		questions: make(map[string]*model.Question),
		wrong:     make(map[string]*model.WrongQuestion),
		settings:  model.Settings{},
	}
}

func newID() string { return uuid.Must(uuid.NewV4()).String() }

// --- users ---

func (d *data) addUser(username, password, email string, admin bool) (model.User, error) {
	pw, err := hashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byName[username]; taken {
		return model.User{}, errUserExists
	}
	a := &account{
		User: model.User{ID: newID(), Username: username, Email: email, IsAdmin: admin, CreatedAt: d.now()},
		pw:   pw,
	}
	d.users[a.ID] = a
	d.byName[username] = a.ID
	return a.User, nil
}

func (d *data) authenticate(username, password string) (model.User, bool) {
	d.mu.RLock()
	a, ok := d.users[d.byName[username]]
	d.mu.RUnlock()
	if !ok || !a.pw.matches(password) {
		return model.User{}, false
	}
	return a.User, true
}

func (d *data) user(id string) (model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.users[id]
	if !ok {
		return model.User{}, false
	}
	return a.User, true
}

func (d *data) listUsers() []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, 0, len(d.users))
	for _, a := range d.users {
		out = append(out, a.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (d *data) patchUser(id string, p model.UserPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.users[id]
	if !ok {
		return errNoUser
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.IsAdmin != nil {
		a.IsAdmin = *p.IsAdmin
	}
	return nil
}

func (d *data) deleteUser(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.users[id]
	if !ok {
		return errNoUser
	}
	for bid, b := range d.banks {
		if b.UserID == id {
			d.dropBankLocked(bid)
		}
	}
	for wid, w := range d.wrong {
		if w.UserID == id {
			delete(d.wrong, wid)
		}
	}
	kept := d.results[:0]
	for _, r := range d.results {
		if r.userID != id {
			kept = append(kept, r)
		}
	}
	d.results = kept
	delete(d.byName, a.Username)
	delete(d.users, id)
	return nil
}

// --- banks and questions ---

func (d *data) countLocked(bankID string) int {
	n := 0
	for _, q := range d.questions {
		if q.BankID == bankID {
			n++
		}
	}
	return n
}

func (d *data) bankQuestionsLocked(bankID string) []model.Question {
	out := []model.Question{}
	for _, id := range d.order {
		if q, ok := d.questions[id]; ok && q.BankID == bankID {
			out = append(out, *q)
		}
	}
	return out
}

// listBanks returns the banks of owner, or all banks when owner is empty.
func (d *data) listBanks(owner string) []model.QuestionBank {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []model.QuestionBank{}
	for _, b := range d.banks {
		if owner != "" && b.UserID != owner {
			continue
		}
		c := *b
		c.QuestionCount = d.countLocked(b.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (d *data) ownedBankLocked(owner, id string) (*model.QuestionBank, bool) {
	b, ok := d.banks[id]
	if !ok || (owner != "" && b.UserID != owner) {
		return nil, false
	}
	return b, true
}

func (d *data) getBank(owner, id string) (model.QuestionBank, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.ownedBankLocked(owner, id)
	if !ok {
		return model.QuestionBank{}, errNoBank
	}
	c := *b
	c.Questions = d.bankQuestionsLocked(id)
	c.QuestionCount = len(c.Questions)
	return c, nil
}

func (d *data) createBank(owner string, in model.NewBank) model.QuestionBank {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &model.QuestionBank{ID: newID(), UserID: owner, Name: in.Name, Description: in.Description, CreatedAt: d.now()}
	d.banks[b.ID] = b
	for _, q := range in.Questions {
		d.addQuestionLocked(b.ID, q)
	}
	c := *b
	c.QuestionCount = len(in.Questions)
	return c
}

func (d *data) addQuestions(owner, bankID string, qs []model.Question) (model.QuestionBank, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.ownedBankLocked(owner, bankID)
	if !ok {
		return model.QuestionBank{}, errNoBank
	}
	for _, q := range qs {
		d.addQuestionLocked(bankID, q)
	}
	c := *b
	c.QuestionCount = d.countLocked(bankID)
	return c, nil
}

func (d *data) addQuestionLocked(bankID string, q model.Question) model.Question {
	q.ID = newID()
	q.BankID = bankID
	if len(q.Answer) > 1 {
		q.IsMultiple = true
	}
	d.questions[q.ID] = &q
	d.order = append(d.order, q.ID)
	return q
}

// deleteBank removes the bank with its questions and the wrong-question records referencing it.
func (d *data) deleteBank(owner, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ownedBankLocked(owner, id); !ok {
		return errNoBank
	}
	d.dropBankLocked(id)
	return nil
}

func (d *data) dropBankLocked(id string) {
	for qid, q := range d.questions {
		if q.BankID == id {
			delete(d.questions, qid)
		}
	}
	for wid, w := range d.wrong {
		if w.BankID == id {
			delete(d.wrong, wid)
		}
	}
	delete(d.banks, id)
}

func (d *data) listQuestions(owner, bankID string) ([]model.Question, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.ownedBankLocked(owner, bankID); !ok {
		return nil, errNoBank
	}
	return d.bankQuestionsLocked(bankID), nil
}

func (d *data) createQuestion(owner string, q model.Question) (model.Question, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ownedBankLocked(owner, q.BankID); !ok {
		return model.Question{}, errNoBank
	}
	return d.addQuestionLocked(q.BankID, q), nil
}

func (d *data) updateQuestion(owner, id string, in model.Question) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.questions[id]
	if !ok {
		return errNoQuestion
	}
	if _, ok := d.ownedBankLocked(owner, q.BankID); !ok {
		return errNoQuestion
	}
	q.Question = in.Question
	q.Options = in.Options
	q.Answer = in.Answer
	q.Explanation = in.Explanation
	q.IsMultiple = in.IsMultiple || len(in.Answer) > 1
	if in.Type != "" {
		q.Type = in.Type
	}
	return nil
}

func (d *data) deleteQuestion(owner, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.questions[id]
	if !ok {
		return errNoQuestion
	}
	if _, ok := d.ownedBankLocked(owner, q.BankID); !ok {
		return errNoQuestion
	}
	delete(d.questions, id)
	return nil
}

// --- wrong questions ---

func (d *data) listWrong(owner string) []model.WrongQuestion {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []model.WrongQuestion{}
	for _, w := range d.wrong {
		if w.UserID != owner {
			continue
		}
		c := *w
		if b, ok := d.banks[w.BankID]; ok {
			c.BankName = b.Name
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out
}

// addWrong reports false when (owner, bank, question) is already recorded.
func (d *data) addWrong(owner string, in model.NewWrongQuestion) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.wrong {
		if w.UserID == owner && w.BankID == in.BankID && w.QuestionID == in.QuestionID {
			return w.ID, false
		}
	}
	w := &model.WrongQuestion{
		ID:          newID(),
		UserID:      owner,
		BankID:      in.BankID,
		QuestionID:  in.QuestionID,
		Question:    in.Question,
		Options:     in.Options,
		Answer:      in.Answer,
		Explanation: in.Explanation,
		IsMultiple:  in.IsMultiple,
		AddedAt:     d.now(),
	}
	d.wrong[w.ID] = w
	return w.ID, true
}

func (d *data) removeWrong(owner, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.wrong[id]
	if !ok || w.UserID != owner {
		return errNoRecord
	}
	delete(d.wrong, id)
	return nil
}

func (d *data) clearWrong(owner string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, w := range d.wrong {
		if w.UserID == owner {
			delete(d.wrong, id)
			n++
		}
	}
	return n
}

// --- exam results ---

func (d *data) saveResult(owner string, r model.ExamResult) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.ID = newID()
	r.CreatedAt = d.now()
	d.results = append(d.results, result{userID: owner, ExamResult: r})
	return r.ID
}

func (d *data) stats(owner string) model.ExamStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var st model.ExamStats
	sum := 0
	for _, r := range d.results {
		if r.userID != owner {
			continue
		}
		st.TotalExams++
		sum += r.Score
		if r.Score > st.BestScore {
			st.BestScore = r.Score
		}
		st.TotalQuestionsAnswered += r.TotalQuestions
	}
	if st.TotalExams > 0 {
		st.AvgScore = float64(sum) / float64(st.TotalExams)
	}
	return st
}

// --- admin ---

func (d *data) adminStats() model.AdminStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return model.AdminStats{
		TotalUsers:          len(d.users),
		TotalQuestionBanks:  len(d.banks),
		TotalQuestions:      len(d.questions),
		TotalExamResults:    len(d.results),
		TotalWrongQuestions: len(d.wrong),
	}
}

func (d *data) getSettings() model.Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(model.Settings, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out
}

func (d *data) putSettings(s model.Settings) {
	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
}
