package bot

import (
	"context"

	"matrix-quiz-bot/internal/domain"
)

// SessionStore abstracts how quiz sessions are stored (in-memory, Redis-mirrored, etc).
// Create must be atomic: it fails with domain.ErrSessionActive when the room
// already holds a session, which is what keeps the one-session-per-room invariant.
type SessionStore interface {
	Get(roomID string) (*domain.Session, bool)
	Create(session *domain.Session) error
	Delete(roomID string)
}

// QuestionSetProvider fetches the ordered question list for a quiz.
type QuestionSetProvider interface {
	FetchQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// AttemptSubmitter delivers a finished attempt to the learning backend.
type AttemptSubmitter interface {
	SubmitAttempt(ctx context.Context, quizID, studentID string, answers map[string]string) (domain.AttemptReceipt, error)
}

// Messenger sends one chat message into a room. Implementations log their own
// transport failures; callers treat a returned error as informational only.
type Messenger interface {
	Send(ctx context.Context, roomID, body string) error
}

// TeacherNotifier carries out-of-band events (help requests, completions) to
// whoever supervises the quiz. Delivery is best effort.
type TeacherNotifier interface {
	HelpRequested(ctx context.Context, roomID, studentID string)
	QuizCompleted(ctx context.Context, roomID, studentID, quizID string)
}

// Event is one inbound chat message.
type Event struct {
	RoomID   string
	Sender   string
	Body     string
	FromSelf bool
}
