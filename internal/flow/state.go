package flow

import (
	"errors"
	"strings"
	"time"

	"geoquiz/internal/bank"
)

var (
	ErrInvalidAction        = errors.New("action not allowed in current stage")
	ErrValidationIncomplete = errors.New("required fields incomplete")
	ErrUnknownVariant       = errors.New("unknown flow variant")
)

type Variant string

const (
	VariantExtended Variant = "extended"
	VariantSimple   Variant = "simple"
)

func ParseVariant(v string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(v))) {
	case "", VariantExtended:
		return VariantExtended, nil
	case VariantSimple:
		return VariantSimple, nil
	default:
		return "", ErrUnknownVariant
	}
}

type Stage string

const (
	StageIntake   Stage = "intake"
	StageQuiz     Stage = "quiz"
	StageSurvey   Stage = "survey"
	StageFinalize Stage = "finalize"
)

// State is everything one respondent's session holds. It is a plain value:
// the controller never mutates the State it is given.
type State struct {
	Variant       Variant             `json:"variant"`
	Stage         Stage               `json:"stage"`
	Background    []BackgroundEntry   `json:"background,omitempty"`
	QuestionCount int                 `json:"question_count,omitempty"`
	Questions     []bank.QuizQuestion `json:"questions,omitempty"`
	Index         int                 `json:"index"`
	Submitted     bool                `json:"submitted"`
	Selected      string              `json:"selected,omitempty"`
	Responses     []Response          `json:"responses,omitempty"`
	Survey        []SurveyAnswer      `json:"survey,omitempty"`
	Result        *Result             `json:"result,omitempty"`
	Outcome       *Outcome            `json:"outcome,omitempty"`
}

type BackgroundEntry struct {
	Key    string `json:"key"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

type Response struct {
	Index       int    `json:"index"`
	Prompt      string `json:"prompt"`
	Chosen      string `json:"chosen"`
	Correct     string `json:"correct"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

type SurveyAnswer struct {
	Key       string `json:"key"`
	Block     string `json:"block"`
	Statement string `json:"statement"`
	Answer    string `json:"answer"`
}

type Result struct {
	Score   int `json:"score"`
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Outcome records what happened when the results were exported and mailed.
type Outcome struct {
	Delivered  bool      `json:"delivered"`
	Messages   []string  `json:"messages,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Warnings []Warning
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		msgs = append(msgs, w.Field+": "+w.Message)
	}
	return ErrValidationIncomplete.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationIncomplete
}

// Current returns the question at the current index while the quiz runs.
func (s State) Current() (bank.QuizQuestion, bool) {
	if s.Stage != StageQuiz || s.Index < 0 || s.Index >= len(s.Questions) {
		return bank.QuizQuestion{}, false
	}
	return s.Questions[s.Index], true
}

// Pending reports whether the session reached Finalize but the export and
// notification have not run yet.
func (s State) Pending() bool {
	return s.Stage == StageFinalize && s.Outcome == nil
}

func (s State) BackgroundValue(key string) string {
	for _, b := range s.Background {
		if b.Key == key {
			return b.Value
		}
	}
	return ""
}

func (s State) clone() State {
	out := s
	out.Background = append([]BackgroundEntry(nil), s.Background...)
	out.Questions = append([]bank.QuizQuestion(nil), s.Questions...)
	out.Responses = append([]Response(nil), s.Responses...)
	out.Survey = append([]SurveyAnswer(nil), s.Survey...)
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	if s.Outcome != nil {
		o := *s.Outcome
		o.Messages = append([]string(nil), s.Outcome.Messages...)
		out.Outcome = &o
	}
	return out
}
