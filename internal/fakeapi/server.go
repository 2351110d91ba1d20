// Package fakeapi is an in-memory implementation of the exam backend HTTP contract.
// It backs the devserver binary and the end-to-end tests of the client packages.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/limiter"
	"github.com/and161185/exam-client/internal/model"
)

// Config controls the fake backend.
type Config struct {
	SignKey   []byte
	AccessTTL time.Duration

	// AdminUsername and AdminPassword seed an administrator account when both are set.
	AdminUsername string
	AdminPassword string

	// Limiter throttles failed logins per username and client address. Nil disables it.
	Limiter limiter.Limiter
}

// Server serves the backend contract under /api.
type Server struct {
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
	data   *data
	router chi.Router

	hitsMu sync.Mutex
	hits   map[string]int
}

// New builds the server and seeds the administrator account.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if len(cfg.SignKey) == 0 {
		return nil, errors.New("fakeapi: empty sign key")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, log: log, now: time.Now, hits: make(map[string]int)}
	s.data = newData(func() time.Time { return s.now() })

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if _, err := s.data.addUser(cfg.AdminUsername, cfg.AdminPassword, "", true); err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
	}
	s.router = s.routes()
	return s, nil
}

// SetClock replaces the time source used for tokens and timestamps.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hits reports how many requests were served for method and route pattern, e.g. "GET", "/api/question-banks".
func (s *Server) Hits(method, pattern string) int {
	s.hitsMu.Lock()
	defer s.hitsMu.Unlock()
	return s.hits[method+" "+pattern]
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverer(s.log))
	r.Use(logging(s.log))
	r.Use(s.counting)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/auth/me", s.me)

			r.Get("/question-banks", s.listBanks)
			r.Post("/question-banks", s.createBank)
			r.Get("/question-banks/{id}", s.getBank)
			r.Delete("/question-banks/{id}", s.deleteBank)
			r.Get("/question-banks/{id}/questions", s.listQuestions)
			r.Post("/question-banks/{id}/upload", s.upload)

			r.Post("/questions", s.createQuestion)
			r.Put("/questions/{id}", s.updateQuestion)
			r.Delete("/questions/{id}", s.deleteQuestion)

			r.Get("/wrong-questions", s.listWrong)
			r.Post("/wrong-questions", s.addWrong)
			r.Delete("/wrong-questions", s.clearWrong)
			r.Delete("/wrong-questions/{id}", s.removeWrong)

			r.Post("/exam-results", s.saveResult)
			r.Get("/exam-results/stats", s.stats)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/users", s.adminUsers)
				r.Patch("/users/{id}", s.adminPatchUser)
				r.Delete("/users/{id}", s.adminDeleteUser)
				r.Get("/question-banks", s.adminBanks)
				r.Delete("/question-banks/{id}", s.adminDeleteBank)
				r.Get("/stats", s.adminStats)
				r.Get("/settings", s.adminSettings)
				r.Put("/settings", s.adminPutSettings)
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func message(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func owner(r *http.Request) string {
	id, _ := userIDFromCtx(r.Context())
	return id
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- auth ---

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in model.Registration
	if !decode(w, r, &in) {
		return
	}
	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	u, err := s.data.addUser(in.Username, in.Password, in.Email, false)
	if errors.Is(err, errUserExists) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("register", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	s.respondAuth(w, "User created successfully", u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in model.Credentials
	if !decode(w, r, &in) {
		return
	}
	ctx := r.Context()
	ipHash := limiter.HashIP(clientIP(r))
	if s.cfg.Limiter != nil {
		ok, retry, err := s.cfg.Limiter.Allow(ctx, in.Username, ipHash)
		if err != nil {
			s.log.Warn("limiter allow", zap.Error(err))
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "Too many failed login attempts")
			return
		}
	}
	u, ok := s.data.authenticate(in.Username, in.Password)
	if !ok {
		if s.cfg.Limiter != nil {
			if _, _, err := s.cfg.Limiter.Failure(ctx, in.Username, ipHash); err != nil {
				s.log.Warn("limiter failure", zap.Error(err))
			}
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Success(ctx, in.Username, ipHash); err != nil {
			s.log.Warn("limiter success", zap.Error(err))
		}
	}
	s.respondAuth(w, "Login successful", u)
}

func (s *Server) respondAuth(w http.ResponseWriter, msg string, u model.User) {
	tok, err := s.issueAccessToken(u.ID)
	if err != nil {
		s.log.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, model.AuthResponse{Message: msg, Token: tok, User: &u})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.data.user(owner(r))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- banks ---

func (s *Server) listBanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listBanks(owner(r)))
}

func (s *Server) getBank(w http.ResponseWriter, r *http.Request) {
	b, err := s.data.getBank(owner(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) createBank(w http.ResponseWriter, r *http.Request) {
	var in model.NewBank
	if !decode(w, r, &in) {
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	b := s.data.createBank(owner(r), in)
	writeJSON(w, http.StatusOK, model.MessageResponse{
		ID:            b.ID,
		Message:       "Question bank created successfully",
		QuestionCount: b.QuestionCount,
	})
}

func (s *Server) deleteBank(w http.ResponseWriter, r *http.Request) {
	if err := s.data.deleteBank(owner(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "Question bank deleted successfully")
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.data.listQuestions(owner(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// --- questions ---

func validQuestion(q model.Question) string {
	switch {
	case q.Question == "":
		return "question is required"
	case len(q.Answer) == 0:
		return "answer is required"
	case len(q.Options) > maxOptions:
		return fmt.Sprintf("too many options (%d, max %d)", len(q.Options), maxOptions)
	case q.Type != "judgment" && len(q.Options) < 2:
		return "a choice question needs at least 2 options"
	}
	return ""
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in model.Question
	if !decode(w, r, &in) {
		return
	}
	if msg := validQuestion(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	q, err := s.data.createQuestion(owner(r), in)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{ID: q.ID, Message: "Question created successfully"})
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var in model.Question
	if !decode(w, r, &in) {
		return
	}
	if msg := validQuestion(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.data.updateQuestion(owner(r), chi.URLParam(r, "id"), in); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "Question updated successfully")
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.data.deleteQuestion(owner(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "Question deleted successfully")
}

// --- wrong questions ---

func (s *Server) listWrong(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listWrong(owner(r)))
}

func (s *Server) addWrong(w http.ResponseWriter, r *http.Request) {
	var in model.NewWrongQuestion
	if !decode(w, r, &in) {
		return
	}
	if in.BankID == "" || in.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "bankId and questionId are required")
		return
	}
	id, added := s.data.addWrong(owner(r), in)
	if !added {
		writeJSON(w, http.StatusOK, model.MessageResponse{ID: id, Message: "Wrong question already exists"})
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{ID: id, Message: "Wrong question added successfully"})
}

func (s *Server) removeWrong(w http.ResponseWriter, r *http.Request) {
	if err := s.data.removeWrong(owner(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "Wrong question removed successfully")
}

func (s *Server) clearWrong(w http.ResponseWriter, r *http.Request) {
	n := s.data.clearWrong(owner(r))
	message(w, fmt.Sprintf("Cleared %d wrong questions", n))
}

// --- exam results ---

func (s *Server) saveResult(w http.ResponseWriter, r *http.Request) {
	var in model.ExamResult
	if !decode(w, r, &in) {
		return
	}
	if in.BankID == "" {
		writeError(w, http.StatusBadRequest, "bankId is required")
		return
	}
	id := s.data.saveResult(owner(r), in)
	writeJSON(w, http.StatusOK, model.MessageResponse{ID: id, Message: "Exam result saved successfully"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.stats(owner(r)))
}

// --- admin ---

func (s *Server) adminUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listUsers())
}

func (s *Server) adminPatchUser(w http.ResponseWriter, r *http.Request) {
	var p model.UserPatch
	if !decode(w, r, &p) {
		return
	}
	if err := s.data.patchUser(chi.URLParam(r, "id"), p); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "User updated successfully")
}

func (s *Server) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == owner(r) {
		writeError(w, http.StatusBadRequest, "Cannot delete yourself")
		return
	}
	if err := s.data.deleteUser(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "User deleted successfully")
}

func (s *Server) adminBanks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.listBanks(""))
}

func (s *Server) adminDeleteBank(w http.ResponseWriter, r *http.Request) {
	if err := s.data.deleteBank("", chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	message(w, "Question bank deleted successfully")
}

func (s *Server) adminStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.adminStats())
}

func (s *Server) adminSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.getSettings())
}

func (s *Server) adminPutSettings(w http.ResponseWriter, r *http.Request) {
	in := model.Settings{}
	if !decode(w, r, &in) {
		return
	}
	s.data.putSettings(in)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Settings updated successfully", "settings": in})
}
