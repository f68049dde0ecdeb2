package flow

import (
	"math"
	"strings"
)

// Score is the rounded percentage of correct answers, 0 for an empty quiz.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func Tally(responses []Response) (correct, total int) {
	for _, r := range responses {
		if r.IsCorrect {
			correct++
		}
	}
	return correct, len(responses)
}

func IsCorrect(selected, correct string) bool {
	selected = strings.TrimSpace(selected)
	correct = strings.TrimSpace(correct)
	if selected == "" || correct == "" {
		return false
	}
	return strings.EqualFold(selected, correct)
}
