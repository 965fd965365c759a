package bot

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RoomNotifier delivers teacher notifications into a supervision room when
// one is configured, and always records them in the log. An empty room ID
// degrades to log-only delivery.
type RoomNotifier struct {
	messenger   Messenger
	teacherRoom string
	log         *logrus.Entry
}

func NewRoomNotifier(messenger Messenger, teacherRoom string, log *logrus.Entry) *RoomNotifier {
	return &RoomNotifier{messenger: messenger, teacherRoom: teacherRoom, log: log}
}

func (n *RoomNotifier) HelpRequested(ctx context.Context, roomID, studentID string) {
	n.log.WithFields(logrus.Fields{"room": roomID, "user": studentID}).Info("help requested")
	n.notify(ctx, fmt.Sprintf("🆘 Help request from %s in %s", studentID, roomID))
}

func (n *RoomNotifier) QuizCompleted(ctx context.Context, roomID, studentID, quizID string) {
	n.log.WithFields(logrus.Fields{"room": roomID, "user": studentID, "quiz": quizID}).Info("quiz completed by student")
	n.notify(ctx, fmt.Sprintf("🎉 Quiz %s completed by %s in %s", quizID, studentID, roomID))
}

func (n *RoomNotifier) notify(ctx context.Context, body string) {
	if n.teacherRoom == "" {
		return
	}
	if err := n.messenger.Send(ctx, n.teacherRoom, body); err != nil {
		n.log.WithField("room", n.teacherRoom).WithError(err).Error("teacher notification failed")
	}
}
