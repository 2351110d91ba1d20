package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/api"
	"github.com/and161185/exam-client/internal/model"
	"github.com/and161185/exam-client/internal/resource"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func need(ok bool, msg string) error {
	if !ok {
		return errors.New(msg)
	}
	return nil
}

// ------- auth -------

func (a *app) cmdVersion(context.Context, []string) error {
	fmt.Fprintf(a.out, "qc %s (%s)\n", version, buildDate)
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := newFlags("register")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	email := fs.String("email", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.enter(ctx, "/login"); err != nil {
		return err
	}
	resp, err := a.session.Register(ctx, model.Registration{Username: *u, Password: *p, Email: *email})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.User.ID)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := newFlags("login")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.enter(ctx, "/login"); err != nil {
		return err
	}
	if _, err := a.session.Login(ctx, model.Credentials{Username: *u, Password: *p}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) cmdLogout(context.Context, []string) error {
	a.session.Logout()
	return nil
}

func (a *app) cmdWhoami(ctx context.Context, _ []string) error {
	if err := a.enter(ctx, "/"); err != nil {
		return err
	}
	a.printJSON(a.session.User())
	return nil
}

// cmdOpen runs the guard for a path and prints where navigation settled.
func (a *app) cmdOpen(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("need <path>")
	}
	loc, trail, err := a.guard.Navigate(ctx, args[0])
	if err != nil {
		return err
	}
	for _, d := range trail[:len(trail)-1] {
		fmt.Fprintf(a.out, "redirect -> %s (%s)\n", d.Redirect, d.Reason)
	}
	name := loc.Name
	if name == "" {
		name = "(unmatched)"
	}
	fmt.Fprintf(a.out, "%s %s\n", name, loc.Path)
	return nil
}

// ------- banks & questions -------

func (a *app) cmdBanks(ctx context.Context, _ []string) error {
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	if err := a.res.LoadBanks(ctx); err != nil {
		return err
	}
	type row struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Questions int    `json:"questions"`
		Created   string `json:"created"`
	}
	rows := []row{}
	for _, b := range a.res.Banks() {
		rows = append(rows, row{ID: b.ID, Name: b.Name, Questions: b.QuestionCount, Created: b.CreatedAt.UTC().Format(time.RFC3339)})
	}
	a.printJSON(rows)
	return nil
}

func (a *app) cmdBank(ctx context.Context, args []string) error {
	fs := newFlags("bank")
	id := fs.String("id", "", "bank id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*id != "", "need -id"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	b, err := a.res.BankDetails(ctx, *id)
	if err != nil {
		return err
	}
	a.printJSON(b)
	return nil
}

func (a *app) cmdBankCreate(ctx context.Context, args []string) error {
	fs := newFlags("bank-create")
	name := fs.String("name", "", "bank name")
	desc := fs.String("desc", "", "description")
	file := fs.String("file", "", "JSON array of questions ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	in := model.NewBank{Name: *name, Description: *desc}
	if *file != "" {
		data, err := a.readAll(*file)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &in.Questions); err != nil {
			return fmt.Errorf("parse %s: %w", *file, err)
		}
	}
	resp, err := a.res.CreateBank(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.ID)
	return nil
}

func (a *app) cmdBankRemove(ctx context.Context, args []string) error {
	fs := newFlags("bank-rm")
	id := fs.String("id", "", "bank id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*id != "", "need -id"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	return a.res.DeleteBank(ctx, *id)
}

func (a *app) cmdUpload(ctx context.Context, args []string) error {
	fs := newFlags("upload")
	bank := fs.String("bank", "", "bank id")
	file := fs.String("file", "", "file to import")
	mode := fs.String("mode", api.ParseModeFormat, "parse mode: format or ai")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*bank != "" && *file != "", "need -bank and -file"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := a.res.UploadBankFile(ctx, *bank, api.Upload{Filename: *file, Content: f, ParseMode: *mode})
	if err != nil {
		return err
	}
	a.printJSON(res)
	return nil
}

func (a *app) cmdQuestions(ctx context.Context, args []string) error {
	fs := newFlags("questions")
	bank := fs.String("bank", "", "bank id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*bank != "", "need -bank"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/practice"); err != nil {
		return err
	}
	if err := a.res.LoadQuestions(ctx, *bank); err != nil {
		return err
	}
	a.printJSON(a.res.Questions(*bank))
	return nil
}

func (a *app) cmdQuestionAdd(ctx context.Context, args []string) error {
	fs := newFlags("question-add")
	bank := fs.String("bank", "", "bank id")
	text := fs.String("q", "", "question text")
	opts := fs.String("opts", "", "options separated by |")
	answer := fs.String("answer", "", "answer letters, e.g. B or A,C")
	explain := fs.String("explain", "", "explanation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	options := splitOptions(*opts)
	ans, err := parseChoice(*answer, len(options))
	if err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	resp, err := a.res.CreateQuestion(ctx, model.Question{
		BankID:      *bank,
		Question:    *text,
		Options:     options,
		Answer:      ans,
		Explanation: *explain,
		IsMultiple:  ans.IsMultiple(),
		Type:        "choice",
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.ID)
	return nil
}

// cmdQuestionUpdate edits a cached question in place; flags left empty keep their value.
func (a *app) cmdQuestionUpdate(ctx context.Context, args []string) error {
	fs := newFlags("question-update")
	bank := fs.String("bank", "", "bank id")
	id := fs.String("id", "", "question id")
	text := fs.String("q", "", "question text")
	opts := fs.String("opts", "", "options separated by |")
	answer := fs.String("answer", "", "answer letters, e.g. B or A,C")
	explain := fs.String("explain", "", "explanation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*bank != "" && *id != "", "need -bank and -id"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	if err := a.res.LoadQuestions(ctx, *bank); err != nil {
		return err
	}

	var q *model.Question
	for _, c := range a.res.Questions(*bank) {
		if c.ID == *id {
			q = &c
			break
		}
	}
	if q == nil {
		return fmt.Errorf("question %s not found in bank %s", *id, *bank)
	}
	q.BankID = *bank
	if *text != "" {
		q.Question = *text
	}
	if *opts != "" {
		q.Options = splitOptions(*opts)
	}
	if *answer != "" || *opts != "" {
		in := *answer
		if in == "" {
			in = letters(q.Answer)
		}
		ans, err := parseChoice(in, len(q.Options))
		if err != nil {
			return err
		}
		q.Answer = ans
		q.IsMultiple = ans.IsMultiple()
	}
	if *explain != "" {
		q.Explanation = *explain
	}

	if _, err := a.res.UpdateQuestion(ctx, q.ID, *q); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) cmdQuestionRemove(ctx context.Context, args []string) error {
	fs := newFlags("question-rm")
	bank := fs.String("bank", "", "bank id")
	id := fs.String("id", "", "question id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*bank != "" && *id != "", "need -bank and -id"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/library"); err != nil {
		return err
	}
	return a.res.DeleteQuestion(ctx, *bank, *id)
}

// ------- wrong questions -------

func (a *app) cmdWrong(ctx context.Context, args []string) error {
	fs := newFlags("wrong")
	bank := fs.String("bank", "", "only this bank")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.enter(ctx, "/wrong-questions"); err != nil {
		return err
	}
	if err := a.res.LoadWrongQuestions(ctx); err != nil {
		return err
	}
	if *bank != "" {
		a.printJSON(a.res.WrongByBank(*bank))
		return nil
	}
	a.printJSON(a.res.WrongQuestions())
	return nil
}

func (a *app) cmdWrongRemove(ctx context.Context, args []string) error {
	fs := newFlags("wrong-rm")
	id := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*id != "", "need -id"); err != nil {
		return err
	}
	if err := a.enter(ctx, "/wrong-questions"); err != nil {
		return err
	}
	return a.res.RemoveWrongQuestion(ctx, *id)
}

func (a *app) cmdWrongClear(ctx context.Context, _ []string) error {
	if err := a.enter(ctx, "/wrong-questions"); err != nil {
		return err
	}
	return a.res.ClearWrongQuestions(ctx)
}

// ------- exams -------

// cmdExam asks every question on a.out and reads one answer per line from a.in.
// Wrong answers are recorded unless the exam is itself a wrong-question review.
func (a *app) cmdExam(ctx context.Context, args []string) error {
	fs := newFlags("exam")
	bank := fs.String("bank", "", "bank id")
	wrongOnly := fs.Bool("wrong", false, "only questions answered wrong before")
	limit := fs.Int("n", 0, "ask at most n questions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(*bank != "", "need -bank"); err != nil {
		return err
	}
	path := "/exam/" + *bank
	if *wrongOnly {
		path = "/exam/wrong-questions/" + *bank
	}
	if err := a.enter(ctx, path); err != nil {
		return err
	}

	qs, err := a.examQuestions(ctx, *bank, *wrongOnly)
	if err != nil {
		return err
	}
	if *limit > 0 && *limit < len(qs) {
		qs = qs[:*limit]
	}
	if len(qs) == 0 {
		return errors.New("no questions to ask")
	}

	title := *bank
	if b, ok := a.res.BankByID(*bank); ok {
		title = b.Name
	}
	a.res.SetCurrentExam(&resource.Exam{BankID: *bank, Title: title, Questions: qs, WrongOnly: *wrongOnly})
	defer a.res.SetCurrentExam(nil)
	started := a.res.CurrentExam().StartedAt

	in := bufio.NewScanner(a.in)
	correct := 0
	for i, q := range qs {
		fmt.Fprintf(a.out, "\n%d/%d. %s\n", i+1, len(qs), q.Question)
		for j, o := range q.Options {
			fmt.Fprintf(a.out, "  %c) %s\n", 'A'+j, o)
		}
		fmt.Fprint(a.out, "> ")
		if !in.Scan() {
			return fmt.Errorf("exam aborted after %d questions", i)
		}
		got, perr := parseChoice(in.Text(), len(q.Options))
		if perr == nil && got.Equal(q.Answer) {
			correct++
			fmt.Fprintln(a.out, "correct")
			continue
		}
		fmt.Fprintf(a.out, "wrong, answer: %s\n", letters(q.Answer))
		if q.Explanation != "" {
			fmt.Fprintln(a.out, q.Explanation)
		}
		if !*wrongOnly {
			if _, err := a.res.AddWrongQuestion(ctx, *bank, q); err != nil {
				a.log.Debug("record wrong question", zap.Error(err))
			}
		}
	}

	total := len(qs)
	result := model.ExamResult{
		BankID:         *bank,
		Score:          correct * 100 / total,
		CorrectCount:   correct,
		WrongCount:     total - correct,
		TotalQuestions: total,
		TotalTime:      int(time.Since(started).Seconds()),
	}
	if _, err := a.res.SaveExamResult(ctx, result); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nscore %d (%d/%d)\n", result.Score, correct, total)
	return nil
}

func (a *app) examQuestions(ctx context.Context, bank string, wrongOnly bool) ([]model.Question, error) {
	if !wrongOnly {
		if err := a.res.LoadQuestions(ctx, bank); err != nil {
			return nil, err
		}
		_ = a.res.LoadBanks(ctx)
		return a.res.Questions(bank), nil
	}
	if err := a.res.LoadWrongQuestions(ctx); err != nil {
		return nil, err
	}
	var qs []model.Question
	for _, w := range a.res.WrongByBank(bank) {
		qs = append(qs, model.Question{
			ID:          w.QuestionID,
			BankID:      w.BankID,
			Question:    w.Question,
			Options:     w.Options,
			Answer:      w.Answer,
			Explanation: w.Explanation,
			IsMultiple:  w.IsMultiple,
			Type:        w.Type,
		})
	}
	return qs, nil
}

func (a *app) cmdStats(ctx context.Context, _ []string) error {
	if err := a.enter(ctx, "/practice"); err != nil {
		return err
	}
	if err := a.res.LoadExamStats(ctx); err != nil {
		return err
	}
	a.printJSON(a.res.ExamStats())
	return nil
}

// ------- admin -------

func (a *app) cmdAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.enter(ctx, "/admin"); err != nil {
		return err
	}
	arg := func() (string, error) {
		if len(args) < 2 || args[1] == "" {
			return "", fmt.Errorf("admin %s: need <id>", args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "users":
		users, err := a.gw.AdminUsers(ctx)
		if err != nil {
			return err
		}
		a.printJSON(users)
	case "banks":
		banks, err := a.gw.AdminBanks(ctx)
		if err != nil {
			return err
		}
		a.printJSON(banks)
	case "stats":
		st, err := a.gw.AdminStats(ctx)
		if err != nil {
			return err
		}
		a.printJSON(st)
	case "settings":
		s, err := a.gw.AdminSettings(ctx)
		if err != nil {
			return err
		}
		a.printJSON(s)
	case "set":
		s := model.Settings{}
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("bad setting %q, want key=value", kv)
			}
			s[k] = v
		}
		return a.gw.AdminUpdateSettings(ctx, s)
	case "rm-user":
		id, err := arg()
		if err != nil {
			return err
		}
		return a.gw.AdminDeleteUser(ctx, id)
	case "rm-bank":
		id, err := arg()
		if err != nil {
			return err
		}
		return a.gw.AdminDeleteBank(ctx, id)
	case "promote":
		id, err := arg()
		if err != nil {
			return err
		}
		yes := true
		return a.gw.AdminUpdateUser(ctx, id, model.UserPatch{IsAdmin: &yes})
	default:
		return errUsage
	}
	return nil
}

// ------- helpers -------

func (a *app) readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(p)
}

func splitOptions(s string) []string {
	var out []string
	for _, o := range strings.Split(s, "|") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// parseChoice reads "B", "a,c" or "AC" into option indexes.
func parseChoice(s string, n int) (model.Answer, error) {
	s = strings.ToUpper(strings.NewReplacer(",", "", " ", "").Replace(s))
	if s == "" {
		return nil, errors.New("empty answer")
	}
	var out model.Answer
	seen := map[rune]bool{}
	for _, r := range s {
		if r < 'A' || int(r-'A') >= n {
			return nil, fmt.Errorf("answer %q is not one of the %d options", string(r), n)
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, strconv.Itoa(int(r-'A')))
		}
	}
	return out, nil
}

// letters renders option indexes back as letters.
func letters(ans model.Answer) string {
	out := make([]string, 0, len(ans))
	for _, v := range ans {
		idx, err := strconv.Atoi(v)
		if err != nil {
			out = append(out, v)
			continue
		}
		out = append(out, string(rune('A'+idx)))
	}
	return strings.Join(out, ",")
}
