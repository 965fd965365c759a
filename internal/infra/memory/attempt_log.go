package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"matrix-quiz-bot/internal/domain"
)

// Attempt is one locally recorded quiz attempt.
type Attempt struct {
	AttemptID   string
	QuizID      string
	StudentID   string
	Answers     map[string]string
	SubmittedAt time.Time
}

// AttemptLog is an in-memory bot.AttemptSubmitter for running the bot
// without a learning backend. Attempts are kept for inspection.
type AttemptLog struct {
	mu       sync.Mutex
	attempts []Attempt
}

func NewAttemptLog() *AttemptLog {
	return &AttemptLog{}
}

func (l *AttemptLog) SubmitAttempt(_ context.Context, quizID, studentID string, answers map[string]string) (domain.AttemptReceipt, error) {
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}

	attempt := Attempt{
		AttemptID:   uuid.NewString(),
		QuizID:      quizID,
		StudentID:   studentID,
		Answers:     copied,
		SubmittedAt: time.Now(),
	}

	l.mu.Lock()
	l.attempts = append(l.attempts, attempt)
	l.mu.Unlock()

	return domain.AttemptReceipt{Success: true, AttemptID: attempt.AttemptID}, nil
}

// Attempts returns a snapshot of everything submitted so far.
func (l *AttemptLog) Attempts() []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Attempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}
