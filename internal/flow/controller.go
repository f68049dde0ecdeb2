package flow

import (
	"context"
	"fmt"
	"strings"

	"geoquiz/internal/bank"
	"geoquiz/internal/survey"
)

type ActionKind string

const (
	ActionSubmitIntake  ActionKind = "submit_intake"
	ActionSelectOption  ActionKind = "select_option"
	ActionConfirmAnswer ActionKind = "confirm_answer"
	ActionNextQuestion  ActionKind = "next_question"
	ActionSubmitSurvey  ActionKind = "submit_survey"
	ActionFinalized     ActionKind = "finalized"
	ActionRestart       ActionKind = "restart"
)

type Action struct {
	Kind   ActionKind        `json:"type"`
	Intake IntakeForm        `json:"intake"`
	Option string            `json:"option,omitempty"`
	Survey map[string]string `json:"survey,omitempty"`

	// Outcome is only set internally, after export and delivery ran.
	Outcome *Outcome `json:"-"`
}

type IntakeForm struct {
	Fields        map[string]string `json:"fields"`
	QuestionCount int               `json:"question_count"`
}

// QuizSource produces the question set for a new quiz. It never fails:
// implementations substitute placeholder content themselves.
type QuizSource interface {
	Quiz(ctx context.Context, count int) []bank.QuizQuestion
}

type Controller struct {
	variant    Variant
	instrument *survey.Instrument
	quiz       QuizSource
}

func NewController(variant Variant, instrument *survey.Instrument, quiz QuizSource) *Controller {
	if variant == "" {
		variant = VariantExtended
	}
	return &Controller{variant: variant, instrument: instrument, quiz: quiz}
}

func (c *Controller) Variant() Variant {
	return c.variant
}

func (c *Controller) Instrument() *survey.Instrument {
	return c.instrument
}

// New returns an empty session positioned at Intake.
func (c *Controller) New() State {
	return State{Variant: c.variant, Stage: StageIntake}
}

// Apply computes the state that follows s under action a. On error the
// returned state equals s.
func (c *Controller) Apply(ctx context.Context, s State, a Action) (State, error) {
	if a.Kind == ActionRestart {
		return State{Variant: s.variant(c.variant), Stage: StageIntake}, nil
	}

	next := s.clone()
	var err error
	switch s.Stage {
	case StageIntake:
		err = c.applyIntake(ctx, &next, a)
	case StageQuiz:
		err = c.applyQuiz(&next, a)
	case StageSurvey:
		err = c.applySurvey(&next, a)
	case StageFinalize:
		err = c.applyFinalize(&next, a)
	default:
		err = fmt.Errorf("%w: unknown stage %q", ErrInvalidAction, s.Stage)
	}
	if err != nil {
		return s, err
	}
	return next, nil
}

func (s State) variant(fallback Variant) Variant {
	if s.Variant == "" {
		return fallback
	}
	return s.Variant
}

func (c *Controller) applyIntake(ctx context.Context, s *State, a Action) error {
	if a.Kind != ActionSubmitIntake {
		return fmt.Errorf("%w: %s during %s", ErrInvalidAction, a.Kind, s.Stage)
	}

	var warnings []Warning
	background := make([]BackgroundEntry, 0, len(c.instrument.Intake.Fields))
	for _, f := range c.instrument.Intake.Fields {
		v := strings.TrimSpace(a.Intake.Fields[f.Key])
		if !f.Allows(v) {
			warnings = append(warnings, Warning{Field: f.Key, Message: f.Warning})
			continue
		}
		background = append(background, BackgroundEntry{Key: f.Key, Column: f.Column, Value: v})
	}
	if !c.instrument.ValidCount(a.Intake.QuestionCount) {
		warnings = append(warnings, Warning{Field: "question_count", Message: c.instrument.Intake.CountWarning})
	}
	if len(warnings) > 0 {
		return &ValidationError{Warnings: warnings}
	}

	s.Background = background
	s.QuestionCount = a.Intake.QuestionCount
	s.Questions = c.quiz.Quiz(ctx, a.Intake.QuestionCount)
	s.Index = 0
	s.Submitted = false
	s.Selected = ""
	s.Responses = nil
	s.Stage = StageQuiz
	if len(s.Questions) == 0 {
		c.leaveQuiz(s)
	}
	return nil
}

func (c *Controller) applyQuiz(s *State, a Action) error {
	q, ok := s.Current()
	if !ok {
		return fmt.Errorf("%w: no current question", ErrInvalidAction)
	}

	switch a.Kind {
	case ActionSelectOption:
		if s.Submitted {
			return fmt.Errorf("%w: answer already confirmed", ErrInvalidAction)
		}
		if !containsOption(q.Options, a.Option) {
			return &ValidationError{Warnings: []Warning{{Field: "option", Message: "請選出正確答案"}}}
		}
		s.Selected = a.Option
		return nil

	case ActionConfirmAnswer:
		if s.Submitted {
			return fmt.Errorf("%w: answer already confirmed", ErrInvalidAction)
		}
		selected := s.Selected
		if a.Option != "" {
			selected = a.Option
		}
		if !containsOption(q.Options, selected) {
			return &ValidationError{Warnings: []Warning{{Field: "option", Message: "請選出正確答案"}}}
		}
		s.Selected = selected
		s.Submitted = true
		return nil

	case ActionNextQuestion:
		if !s.Submitted {
			return fmt.Errorf("%w: confirm the answer first", ErrInvalidAction)
		}
		s.Responses = append(s.Responses, Response{
			Index:       s.Index + 1,
			Prompt:      q.Prompt,
			Chosen:      s.Selected,
			Correct:     q.CorrectOption,
			IsCorrect:   IsCorrect(s.Selected, q.CorrectOption),
			Explanation: q.Explanation,
		})
		s.Index++
		s.Submitted = false
		s.Selected = ""
		if s.Index >= len(s.Questions) {
			c.leaveQuiz(s)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s during %s", ErrInvalidAction, a.Kind, s.Stage)
	}
}

func (c *Controller) leaveQuiz(s *State) {
	if s.variant(c.variant) == VariantSimple {
		enterFinalize(s)
		return
	}
	s.Stage = StageSurvey
}

func (c *Controller) applySurvey(s *State, a Action) error {
	if a.Kind != ActionSubmitSurvey {
		return fmt.Errorf("%w: %s during %s", ErrInvalidAction, a.Kind, s.Stage)
	}

	items := c.instrument.Items()
	answers := make([]SurveyAnswer, 0, len(items))
	var warnings []Warning
	for _, it := range items {
		v := strings.TrimSpace(a.Survey[it.Key])
		if !c.instrument.ValidScale(v) {
			warnings = append(warnings, Warning{Field: it.Key, Message: c.instrument.Survey.Warning})
			continue
		}
		answers = append(answers, SurveyAnswer{Key: it.Key, Block: it.Block, Statement: it.Statement, Answer: v})
	}
	if len(warnings) > 0 {
		return &ValidationError{Warnings: warnings}
	}

	s.Survey = answers
	enterFinalize(s)
	return nil
}

func enterFinalize(s *State) {
	correct, total := Tally(s.Responses)
	s.Stage = StageFinalize
	s.Result = &Result{Score: Score(correct, total), Correct: correct, Total: total}
	s.Outcome = nil
}

func (c *Controller) applyFinalize(s *State, a Action) error {
	if a.Kind != ActionFinalized || a.Outcome == nil {
		return fmt.Errorf("%w: %s during %s", ErrInvalidAction, a.Kind, s.Stage)
	}
	if s.Outcome != nil {
		return fmt.Errorf("%w: results already delivered", ErrInvalidAction)
	}
	o := *a.Outcome
	o.Messages = append([]string(nil), a.Outcome.Messages...)
	s.Outcome = &o
	return nil
}

func containsOption(options []string, v string) bool {
	if v == "" {
		return false
	}
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
