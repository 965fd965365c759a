package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/domain"
)

// SessionEngine drives a room's quiz session through start, answer, and
// completion transitions. Every external failure resolves to a chat reply;
// the engine never leaves a session half-created and only removes one after
// the backend has accepted the attempt.
type SessionEngine struct {
	sessions  SessionStore
	questions QuestionSetProvider
	submitter AttemptSubmitter
	messenger Messenger
	notifier  TeacherNotifier
	log       *logrus.Entry
	now       func() time.Time
}

func NewSessionEngine(sessions SessionStore, questions QuestionSetProvider, submitter AttemptSubmitter, messenger Messenger, notifier TeacherNotifier, log *logrus.Entry) *SessionEngine {
	return &SessionEngine{
		sessions:  sessions,
		questions: questions,
		submitter: submitter,
		messenger: messenger,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// NewSessionEngineWithClock is test-only for deterministic timestamps.
func NewSessionEngineWithClock(sessions SessionStore, questions QuestionSetProvider, submitter AttemptSubmitter, messenger Messenger, notifier TeacherNotifier, log *logrus.Entry, now func() time.Time) *SessionEngine {
	engine := NewSessionEngine(sessions, questions, submitter, messenger, notifier, log)
	engine.now = now
	return engine
}

// StartQuiz begins a new session in the room. A fetch failure aborts the
// start without creating anything.
func (e *SessionEngine) StartQuiz(ctx context.Context, roomID, studentID, quizID string) {
	if _, ok := e.sessions.Get(roomID); ok {
		e.send(ctx, roomID, alreadyActiveReply)
		return
	}

	questions, err := e.questions.FetchQuestions(ctx, quizID)
	if err != nil {
		e.log.WithFields(logrus.Fields{"room": roomID, "quiz": quizID}).WithError(err).Error("fetching questions failed")
		e.send(ctx, roomID, startErrorReply(err))
		return
	}

	session := domain.NewSession(roomID, studentID, quizID, domain.NormalizeQuestions(questions), e.now())
	if err := e.sessions.Create(session); err != nil {
		if errors.Is(err, domain.ErrSessionActive) {
			e.send(ctx, roomID, alreadyActiveReply)
			return
		}
		e.log.WithField("room", roomID).WithError(err).Error("creating session failed")
		e.send(ctx, roomID, startErrorReply(err))
		return
	}

	e.log.WithFields(logrus.Fields{"room": roomID, "user": studentID, "quiz": quizID}).Info("quiz started")
	e.send(ctx, roomID, welcomeReply(quizID, len(session.Questions)))
	e.deliverQuestion(ctx, session)
}

// HandleAnswer applies one inbound message as an answer to the room's
// session. An invalid token leaves the session untouched so the same
// question stays current. When the session is already past its last
// question (a prior submit failed), any message retries the submission.
func (e *SessionEngine) HandleAnswer(ctx context.Context, roomID, body string) {
	session, ok := e.sessions.Get(roomID)
	if !ok {
		return
	}

	if session.Finished() {
		e.commitCompletion(ctx, session)
		return
	}

	letter := strings.ToUpper(strings.TrimSpace(body))
	if !validAnswer(letter) {
		e.send(ctx, roomID, invalidAnswerReply)
		return
	}

	session.Answers[questionKey(session.CurrentIndex)] = letter
	session.CurrentIndex++

	e.send(ctx, roomID, answerRecordedReply(letter))
	e.deliverQuestion(ctx, session)
}

// deliverQuestion emits the current question, or commits completion once
// the index has run past the end of the set.
func (e *SessionEngine) deliverQuestion(ctx context.Context, session *domain.Session) {
	if session.Finished() {
		e.commitCompletion(ctx, session)
		return
	}
	question := session.Questions[session.CurrentIndex]
	e.send(ctx, session.RoomID, questionReply(question, session.CurrentIndex+1, len(session.Questions)))
}

// commitCompletion submits the attempt. Only an accepted submission removes
// the session; on failure it stays in place so a retry loses nothing.
func (e *SessionEngine) commitCompletion(ctx context.Context, session *domain.Session) {
	receipt, err := e.submitter.SubmitAttempt(ctx, session.QuizID, session.StudentID, session.Answers)
	if err != nil {
		e.log.WithFields(logrus.Fields{"room": session.RoomID, "quiz": session.QuizID}).WithError(err).Error("attempt submission failed")
		e.send(ctx, session.RoomID, submitErrorReply(err))
		return
	}

	e.log.WithFields(logrus.Fields{
		"room":    session.RoomID,
		"user":    session.StudentID,
		"quiz":    session.QuizID,
		"attempt": receipt.AttemptID,
	}).Info("quiz completed")

	e.send(ctx, session.RoomID, completionReply(len(session.Answers), e.now().Sub(session.StartedAt)))
	e.sessions.Delete(session.RoomID)
	e.notifier.QuizCompleted(ctx, session.RoomID, session.StudentID, session.QuizID)
}

// RequestHelp acknowledges a help request without touching session state.
func (e *SessionEngine) RequestHelp(ctx context.Context, roomID, studentID string) {
	e.send(ctx, roomID, helpReply)
	e.notifier.HelpRequested(ctx, roomID, studentID)
}

func (e *SessionEngine) send(ctx context.Context, roomID, body string) {
	if err := e.messenger.Send(ctx, roomID, body); err != nil {
		e.log.WithField("room", roomID).WithError(err).Error("sending reply failed")
	}
}

func validAnswer(letter string) bool {
	switch letter {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

func questionKey(index int) string {
	return "q" + strconv.Itoa(index+1)
}
