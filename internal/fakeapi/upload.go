package fakeapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/model"
)

const (
	maxOptions    = 10
	maxUploadSize = 10 << 20
)

var errNoQuestions = errors.New("no valid questions found in file")

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	bankID := chi.URLParam(r, "id")
	if _, err := s.data.getBank(owner(r), bankID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "please choose a file to upload")
		return
	}
	defer f.Close()

	mode := r.FormValue("parseMode")
	if mode == "" {
		mode = "format"
	}
	if mode != "format" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse mode %q is not available", mode))
		return
	}

	qs, err := parseFile(hdr.Filename, f)
	if err != nil {
		s.log.Debug("upload parse", zap.String("file", hdr.Filename), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, q := range qs {
		if len(q.Options) > maxOptions {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("question %d has more than %d options (%d)", i+1, maxOptions, len(q.Options)))
			return
		}
	}

	b, err := s.data.addQuestions(owner(r), bankID, qs)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.UploadResult{
		ID:            b.ID,
		Name:          b.Name,
		Description:   b.Description,
		QuestionCount: len(qs),
		Message:       fmt.Sprintf("imported %d/%d questions into the bank", len(qs), len(qs)),
	})
}

// parseFile picks a parser by extension. Only structured formats are accepted.
func parseFile(name string, r io.Reader) ([]model.Question, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return parseCSV(r)
	case ".json":
		return parseJSON(r)
	case ".pdf", ".doc", ".docx", ".xlsx", ".xls":
		return nil, fmt.Errorf("%s files cannot be imported in format mode", ext)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

func parseJSON(r io.Reader) ([]model.Question, error) {
	var qs []model.Question
	if err := json.NewDecoder(r).Decode(&qs); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	out := qs[:0]
	for _, q := range qs {
		if strings.TrimSpace(q.Question) != "" && len(q.Answer) > 0 {
			q.IsMultiple = q.IsMultiple || len(q.Answer) > 1
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errNoQuestions
	}
	return out, nil
}

var (
	trueWords  = []string{"正确", "TRUE", "T", "√", "对", "是"}
	falseWords = []string{"错误", "FALSE", "F", "×", "错", "否"}
)

// parseCSV reads rows of: question, answer, option A..J, explanation. The first row is a header.
// Answers are option letters, comma separated for multi-select, or a true/false word.
func parseCSV(r io.Reader) ([]model.Question, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("CSV needs a header row and at least one question")
	}

	explCol := -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "explanation", "解析", "说明":
			explCol = i
		}
	}

	var out []model.Question
	for n, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		text := strings.TrimSpace(row[0])
		ans := strings.ToUpper(strings.Trim(strings.TrimSpace(row[1]), `"'`))
		if text == "" || ans == "" {
			continue
		}

		if isOneOf(ans, trueWords) || isOneOf(ans, falseWords) {
			a := "0"
			if isOneOf(ans, trueWords) {
				a = "1"
			}
			out = append(out, model.Question{
				Question: text, Options: []string{"错误", "正确"}, Answer: model.Single(a),
				Type: "judgment", Explanation: cell(row, explCol),
			})
			continue
		}

		var opts []string
		for c := 2; c < len(row) && c < 2+maxOptions; c++ {
			if c == explCol {
				break
			}
			if v := strings.TrimSpace(row[c]); v != "" {
				opts = append(opts, v)
			}
		}
		if len(opts) < 2 {
			continue
		}
		answer, err := letters(ans, len(opts))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		out = append(out, model.Question{
			Question: text, Options: opts, Answer: answer, IsMultiple: len(answer) > 1,
			Type: "choice", Explanation: cell(row, explCol),
		})
	}
	if len(out) == 0 {
		return nil, errNoQuestions
	}
	return out, nil
}

// letters converts "A" or "A,C" into option indexes, dropping duplicates.
func letters(s string, n int) (model.Answer, error) {
	var out model.Answer
	seen := map[int]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) != 1 || p[0] < 'A' || int(p[0]-'A') >= n {
			return nil, fmt.Errorf("answer %q out of range A-%c", p, 'A'+n-1)
		}
		idx := int(p[0] - 'A')
		if !seen[idx] {
			seen[idx] = true
			out = append(out, strconv.Itoa(idx))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty answer")
	}
	return out, nil
}

func isOneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
