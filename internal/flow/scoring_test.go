package flow

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		total   int
		want    int
	}{
		{name: "seven of ten", correct: 7, total: 10, want: 70},
		{name: "nothing answered", correct: 0, total: 0, want: 0},
		{name: "all correct", correct: 15, total: 15, want: 100},
		{name: "none correct", correct: 0, total: 20, want: 0},
		{name: "rounds up", correct: 2, total: 3, want: 67},
		{name: "rounds down", correct: 1, total: 3, want: 33},
		{name: "half rounds away from zero", correct: 1, total: 8, want: 13},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.correct, tc.total); got != tc.want {
				t.Fatalf("Score(%d,%d)=%d, want %d", tc.correct, tc.total, got, tc.want)
			}
		})
	}
}

func TestTally(t *testing.T) {
	correct, total := Tally([]Response{{IsCorrect: true}, {IsCorrect: false}, {IsCorrect: true}})
	if correct != 2 || total != 3 {
		t.Fatalf("expected 2/3, got %d/%d", correct, total)
	}
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		selected string
		correct  string
		want     bool
	}{
		{selected: "4", correct: "4", want: true},
		{selected: " 4 ", correct: "4", want: true},
		{selected: "5", correct: "4", want: false},
		{selected: "", correct: "", want: false},
	}
	for _, tc := range tests {
		if got := IsCorrect(tc.selected, tc.correct); got != tc.want {
			t.Fatalf("IsCorrect(%q,%q)=%v, want %v", tc.selected, tc.correct, got, tc.want)
		}
	}
}
