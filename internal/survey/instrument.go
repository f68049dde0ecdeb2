// Package survey describes the intake form and the post-quiz Likert
// questionnaire. The default instrument is embedded; deployments may replace
// it with a YAML file of the same shape.
package survey

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed instrument.yaml
var defaultInstrument []byte

var ErrInvalidInstrument = errors.New("invalid survey instrument")

const (
	FieldText   = "text"
	FieldChoice = "choice"
)

type Instrument struct {
	Title  string `yaml:"title"`
	Intro  string `yaml:"intro"`
	Intake Intake `yaml:"intake"`
	Survey Survey `yaml:"survey"`
}

type Intake struct {
	Fields         []Field `yaml:"fields"`
	QuestionCounts []int   `yaml:"question_counts"`
	CountWarning   string  `yaml:"count_warning"`
}

// Field is one required intake input. Column is the header used in the
// exported background sheet.
type Field struct {
	Key     string   `yaml:"key"`
	Label   string   `yaml:"label"`
	Column  string   `yaml:"column"`
	Kind    string   `yaml:"kind"`
	Options []string `yaml:"options"`
	Warning string   `yaml:"warning"`
}

type Survey struct {
	Instructions string   `yaml:"instructions"`
	Warning      string   `yaml:"warning"`
	Scale        []string `yaml:"scale"`
	Blocks       []Block  `yaml:"blocks"`
}

type Block struct {
	Key        string   `yaml:"key"`
	Title      string   `yaml:"title"`
	Statements []string `yaml:"statements"`
}

// Item is a single Likert statement addressed by its export key, e.g. 自主學習_3.
type Item struct {
	Key       string
	Block     string
	Number    int
	Statement string
}

func Default() (*Instrument, error) {
	return Parse(defaultInstrument)
}

// Load reads an instrument file, or the embedded default when path is empty.
func Load(path string) (*Instrument, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey instrument: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Instrument, error) {
	var in Instrument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&in); err != nil {
		return nil, fmt.Errorf("parse survey instrument: %w", err)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *Instrument) validate() error {
	if len(in.Intake.Fields) == 0 {
		return fmt.Errorf("%w: intake has no fields", ErrInvalidInstrument)
	}
	keys := map[string]struct{}{}
	for _, f := range in.Intake.Fields {
		if f.Key == "" || f.Column == "" {
			return fmt.Errorf("%w: intake field needs key and column", ErrInvalidInstrument)
		}
		if _, dup := keys[f.Key]; dup {
			return fmt.Errorf("%w: duplicate intake field %q", ErrInvalidInstrument, f.Key)
		}
		keys[f.Key] = struct{}{}
		switch f.Kind {
		case FieldText:
		case FieldChoice:
			if len(f.Options) == 0 {
				return fmt.Errorf("%w: choice field %q has no options", ErrInvalidInstrument, f.Key)
			}
		default:
			return fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidInstrument, f.Key, f.Kind)
		}
	}
	if len(in.Intake.QuestionCounts) == 0 {
		return fmt.Errorf("%w: no question counts", ErrInvalidInstrument)
	}
	for _, n := range in.Intake.QuestionCounts {
		if n <= 0 {
			return fmt.Errorf("%w: question count must be positive", ErrInvalidInstrument)
		}
	}
	if len(in.Survey.Scale) != 5 {
		return fmt.Errorf("%w: likert scale needs 5 points, got %d", ErrInvalidInstrument, len(in.Survey.Scale))
	}
	blocks := map[string]struct{}{}
	for _, b := range in.Survey.Blocks {
		if b.Key == "" || len(b.Statements) == 0 {
			return fmt.Errorf("%w: survey block needs key and statements", ErrInvalidInstrument)
		}
		if _, dup := blocks[b.Key]; dup {
			return fmt.Errorf("%w: duplicate survey block %q", ErrInvalidInstrument, b.Key)
		}
		blocks[b.Key] = struct{}{}
	}
	return nil
}

func (b Block) ItemKey(i int) string {
	return fmt.Sprintf("%s_%d", b.Key, i+1)
}

// Items lists every statement across blocks in presentation order.
func (in *Instrument) Items() []Item {
	var out []Item
	for _, b := range in.Survey.Blocks {
		for i, s := range b.Statements {
			out = append(out, Item{Key: b.ItemKey(i), Block: b.Key, Number: i + 1, Statement: s})
		}
	}
	return out
}

func (in *Instrument) ValidCount(n int) bool {
	for _, c := range in.Intake.QuestionCounts {
		if c == n {
			return true
		}
	}
	return false
}

func (in *Instrument) ValidScale(v string) bool {
	for _, s := range in.Survey.Scale {
		if s == v {
			return true
		}
	}
	return false
}

func (f Field) Allows(v string) bool {
	if f.Kind != FieldChoice {
		return strings.TrimSpace(v) != ""
	}
	for _, o := range f.Options {
		if o == v {
			return true
		}
	}
	return false
}
