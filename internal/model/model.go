// Package model defines domain entities exchanged with the exam backend and cached by the stores.
package model

import (
	"time"
)

// User represents the authenticated account. It is replaced wholesale on every auth call.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Credentials are the login input.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the register input.
type Registration struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}

// QuestionBank is a named collection of questions owned by a user.
type QuestionBank struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id,omitempty"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	QuestionCount int        `json:"question_count"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	Questions     []Question `json:"questions,omitempty"`
}

// NewBank is the create-bank input. Questions are optional.
type NewBank struct {
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions,omitempty"`
}

// Question belongs to exactly one bank.
type Question struct {
	ID          string   `json:"id,omitempty"`
	BankID      string   `json:"bank_id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      Answer   `json:"answer"`
	Explanation string   `json:"explanation"`
	IsMultiple  bool     `json:"is_multiple"`
	Type        string   `json:"type,omitempty"`
}

// WrongQuestion is a snapshot of a question the user got wrong. It survives edits of the live question.
type WrongQuestion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	BankID      string    `json:"bank_id"`
	QuestionID  string    `json:"question_id"`
	Question    string    `json:"question"`
	Options     []string  `json:"options"`
	Answer      Answer    `json:"answer"`
	Explanation string    `json:"explanation"`
	IsMultiple  bool      `json:"is_multiple"`
	Type        string    `json:"type,omitempty"`
	BankName    string    `json:"bank_name,omitempty"`
	AddedAt     time.Time `json:"added_at,omitempty"`
}

// NewWrongQuestion is the add-wrong-question payload.
type NewWrongQuestion struct {
	BankID      string   `json:"bankId"`
	QuestionID  string   `json:"questionId"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      Answer   `json:"answer"`
	IsMultiple  bool     `json:"is_multiple"`
	Explanation string   `json:"explanation"`
}

// ExamResult is an append-only record of a completed exam.
type ExamResult struct {
	ID             string    `json:"id,omitempty"`
	BankID         string    `json:"bankId"`
	Score          int       `json:"score"`
	CorrectCount   int       `json:"correctCount"`
	WrongCount     int       `json:"wrongCount"`
	TotalQuestions int       `json:"totalQuestions"`
	TotalTime      int       `json:"totalTime"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// ExamStats aggregates the user's exam results.
type ExamStats struct {
	TotalExams             int     `json:"total_exams"`
	AvgScore               float64 `json:"avg_score"`
	BestScore              int     `json:"best_score"`
	TotalQuestionsAnswered int     `json:"total_questions_answered"`
}

// MessageResponse is the generic acknowledgement of mutating endpoints.
type MessageResponse struct {
	ID            string `json:"id,omitempty"`
	Message       string `json:"message,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
}

// UploadResult is returned after a bank file import.
type UploadResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	QuestionCount int    `json:"questionCount"`
	Message       string `json:"message"`
}

// UserPatch is the admin update-user payload. Nil fields are left unchanged.
type UserPatch struct {
	Email   *string `json:"email,omitempty"`
	IsAdmin *bool   `json:"is_admin,omitempty"`
}

// AdminStats is the system-wide summary shown to administrators.
type AdminStats struct {
	TotalUsers          int `json:"total_users"`
	TotalQuestionBanks  int `json:"total_question_banks"`
	TotalQuestions      int `json:"total_questions"`
	TotalExamResults    int `json:"total_exam_results"`
	TotalWrongQuestions int `json:"total_wrong_questions"`
}

// Settings are free-form system settings.
type Settings map[string]any
