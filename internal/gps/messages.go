package gps

import "strings"

// bannedWords never appear in anything shown to the user.
var bannedWords = []string{"failed", "overspent", "bad", "irresponsible", "mistake", "wasted"}

var messages = map[Level]string{
	LevelNone:     "You're moving steadily. Your plan for this category has room to spare.",
	LevelWarning:  "Heads up: most of this period's plan for this category is already in use. A small tweak now keeps your goal on course.",
	LevelExceeded: "This category has gone past its plan for the period. That happens. Here are a few ways to get back on route to your goal.",
	LevelCritical: "This category is well past its plan this period. Life happens, and there is still a clear route to your goal. Pick the option that fits you best.",
}

var pathText = map[PathID]struct{ name, description string }{
	TimeAdjustment: {"Adjust your timeline", "Keep your current routine and move your goal date out a little."},
	RateAdjustment: {"Boost your savings rate", "Put a bit more towards your goal each month until you're back on course."},
	FreezeProtocol: {"Pause this category", "Take a short break from spending in this category and redirect it to your goal."},
}

// Message returns the supportive message for a trigger level.
func Message(l Level) string {
	if m, ok := messages[l]; ok {
		return m
	}
	return messages[LevelNone]
}

// ContainsBannedWord reports whether s uses any judgmental wording.
func ContainsBannedWord(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range bannedWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
