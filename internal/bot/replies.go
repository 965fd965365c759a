package bot

import (
	"fmt"
	"strings"
	"time"

	"matrix-quiz-bot/internal/domain"
)

const (
	usageReply = "📚 Quiz Bot Commands:\n" +
		"• `!quiz list` - Show available quizzes\n" +
		"• `!quiz start <quiz_id>` - Start a quiz\n" +
		"• `!help` - Get help from teacher"

	unknownCommandReply = "❌ Unknown quiz command. Type `!quiz` for help."

	alreadyActiveReply = "❌ You already have an active quiz in this room. Complete it first!"

	invalidAnswerReply = "⚠️ Please answer with A, B, C, or D"

	helpReply = "🆘 **Help Request Sent!**\n\n" +
		"Your teacher has been notified and will join this room shortly.\n" +
		"In the meantime, you can:\n" +
		"• Continue with the quiz\n" +
		"• Review the question carefully\n" +
		"• Think about what you already know about this topic"

	onboardingReply = "👋 Hello! I'm the Quiz Bot.\n\n" +
		"📚 Type `!quiz` to see available commands\n" +
		"🆘 Type `help` if you need assistance"
)

func catalogReply(entries []domain.CatalogEntry) string {
	var b strings.Builder
	b.WriteString("📚 **Available Quizzes:**\n\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "• `%s` - %s\n", entry.ID, entry.Title)
	}
	if len(entries) > 0 {
		fmt.Fprintf(&b, "\nTo start a quiz, type: `!quiz start %s`", entries[0].ID)
	}
	return b.String()
}

func welcomeReply(quizID string, total int) string {
	return fmt.Sprintf(
		"🎯 **Starting Quiz: %s**\n\n"+
			"📝 Total Questions: %d\n"+
			"⏰ No time limit - take your time!\n"+
			"🆘 Type `help` if you need assistance\n\n"+
			"Ready? Here's your first question...",
		quizID, total)
}

func questionReply(q domain.Question, position, total int) string {
	return fmt.Sprintf(
		"**Question %d of %d**\n\n"+
			"❓ %s\n\n"+
			"%s\n\n"+
			"💡 Type your answer (A, B, C, or D)",
		position, total, q.Text, strings.Join(q.Options, "\n"))
}

func answerRecordedReply(letter string) string {
	return fmt.Sprintf("✅ Answer recorded: %s", letter)
}

func completionReply(answered int, elapsed time.Duration) string {
	return fmt.Sprintf(
		"🎉 **Quiz Completed!**\n\n"+
			"📝 Questions answered: %d\n"+
			"⏰ Time taken: %s\n"+
			"✅ Submitted successfully!\n\n"+
			"💬 This room is now available for discussion with your teacher.\n"+
			"Feel free to ask questions about the quiz content!",
		answered, elapsed.Round(time.Second))
}

func startErrorReply(err error) string {
	return fmt.Sprintf("❌ Error starting quiz: %v", err)
}

func submitErrorReply(err error) string {
	return fmt.Sprintf("❌ Error submitting quiz: %v", err)
}
