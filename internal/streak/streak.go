// Package streak computes consecutive-completion streaks.
package streak

// PriorDay describes the calendar day immediately before the completed task.
type PriorDay struct {
	HasTask   bool // a task was scheduled that day
	Completed bool // the user completed it
}

// Next returns the streak after the user completes today's task.
// A day without a task never breaks a streak; a missed task restarts it at 1
// because the day just completed counts.
func Next(current int, prior PriorDay) int {
	if current < 0 {
		current = 0
	}
	if !prior.HasTask || prior.Completed {
		return current + 1
	}
	return 1
}

// Level maps a streak to the reader level shown in bot replies.
func Level(streak int) string {
	switch {
	case streak >= 30:
		return "🏆 Master"
	case streak >= 20:
		return "📚 Expert"
	case streak >= 10:
		return "📖 Reader"
	case streak >= 5:
		return "📝 Beginner"
	default:
		return "🌱 Newcomer"
	}
}
