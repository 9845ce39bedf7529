package session

import (
	"fmt"
	"strings"

	"github.com/brightboard-labs/brightboard/internal/lesson"
)

// QuizNarration renders a quiz item the way it is read aloud. number is
// 1-based. The same string is used for both playback and prefetch, so
// warmed clips always match the later play request byte for byte.
func QuizNarration(number int, item lesson.QuizItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d. %s.", number, strings.TrimSuffix(item.Question, "."))
	for i, opt := range item.Options {
		fmt.Fprintf(&b, " %d, %s.", i+1, strings.TrimSuffix(opt, "."))
	}
	b.WriteString(" Pick the answer.")
	return b.String()
}

func greetingNarration(greeting, topic, goal string) string {
	return fmt.Sprintf("%s Today we are going to learn about %s. %s", greeting, topic, goal)
}

func closingNarration(score, total int) string {
	if total == 0 {
		return "That is the end of our lesson. Great work today!"
	}
	return fmt.Sprintf("That is the end of our lesson. You answered %d out of %d questions correctly. Great work today!", score, total)
}
