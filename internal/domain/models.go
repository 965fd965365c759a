package domain

import (
	"sort"
	"time"
)

// Question is a single multiple-choice question as delivered to a student.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Type    string   `json:"type"`
	Order   int      `json:"order"` // 1-based position in the set
}

// QuestionSet is the ordered question list for one quiz.
type QuestionSet struct {
	QuizID    string     `json:"quizId"`
	Questions []Question `json:"questions"`
}

// Session tracks one student's progress through one quiz in one room.
// The question set is captured at start time so that mid-quiz content
// edits on the backend cannot desynchronize CurrentIndex.
type Session struct {
	RoomID       string
	StudentID    string
	QuizID       string
	CurrentIndex int
	Answers      map[string]string
	Questions    []Question
	StartedAt    time.Time
}

func NewSession(roomID, studentID, quizID string, questions []Question, startedAt time.Time) *Session {
	return &Session{
		RoomID:    roomID,
		StudentID: studentID,
		QuizID:    quizID,
		Answers:   make(map[string]string),
		Questions: questions,
		StartedAt: startedAt,
	}
}

// Finished reports whether every question has been answered.
func (s *Session) Finished() bool {
	return s.CurrentIndex >= len(s.Questions)
}

// AttemptReceipt acknowledges a submitted quiz attempt.
type AttemptReceipt struct {
	Success   bool   `json:"success"`
	AttemptID string `json:"attempt_id"`
}

// CatalogEntry describes one startable quiz for the list command.
type CatalogEntry struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// NormalizeQuestions sorts questions by their declared Order and rewrites
// Order so it always matches index+1. Sources that deliver unordered or
// zero-Order content come out consistent.
func NormalizeQuestions(questions []Question) []Question {
	normalized := make([]Question, len(questions))
	copy(normalized, questions)
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Order < normalized[j].Order
	})
	for i := range normalized {
		normalized[i].Order = i + 1
	}
	return normalized
}
