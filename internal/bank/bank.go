package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"geoquiz/internal/platform/logger"

	"gopkg.in/yaml.v3"
)

var ErrBankUnavailable = errors.New("question bank unavailable")

const explanationPrefix = "解法："

// Answer holds the raw `ans` value of a bank record, which is either a JSON
// number or a JSON string.
type Answer string

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Answer(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ans must be a number or string: %w", err)
	}
	*a = Answer(n.String())
	return nil
}

func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("ans must be a scalar at line %d", node.Line)
	}
	*a = Answer(node.Value)
	return nil
}

type Record struct {
	SourceText string `json:"original_text" yaml:"original_text"`
	Answer     Answer `json:"ans" yaml:"ans"`
	Derivation string `json:"equation" yaml:"equation"`
}

type QuizQuestion struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	Explanation   string   `json:"explanation"`
}

type LoaderConfig struct {
	// AllowDegenerate keeps records whose answer is not numeric as
	// single-option questions instead of dropping them.
	AllowDegenerate bool
}

type Loader struct {
	cfg LoaderConfig
	log *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLoader(rng *rand.Rand, log *logger.Logger, cfg LoaderConfig) *Loader {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{cfg: cfg, log: log, rng: rng}
}

// Load reads the bank at path and returns a random sample of at most count
// questions.
func (l *Loader) Load(ctx context.Context, path string, count int) ([]QuizQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return l.Build(records, count), nil
}

// ReadRecords parses a JSON bank, or a YAML bank when the extension says so.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrBankUnavailable, path, err)
	}

	var records []Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", ErrBankUnavailable, err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: parse json: %v", ErrBankUnavailable, err)
		}
	}
	return records, nil
}

// Build turns records into questions and samples min(count, usable) of them
// without replacement, in random order.
func (l *Loader) Build(records []Record, count int) []QuizQuestion {
	l.mu.Lock()
	defer l.mu.Unlock()

	questions := make([]QuizQuestion, 0, len(records))
	skipped := 0
	for _, rec := range records {
		q, ok := l.buildQuestion(rec)
		if !ok && !l.cfg.AllowDegenerate {
			skipped++
			continue
		}
		questions = append(questions, q)
	}
	if skipped > 0 {
		l.log.Warn("skipped bank records with non-numeric answers", "skipped", skipped, "usable", len(questions))
	}

	n := min(count, len(questions))
	if n <= 0 {
		return []QuizQuestion{}
	}
	picks := l.rng.Perm(len(questions))[:n]
	out := make([]QuizQuestion, 0, n)
	for _, ix := range picks {
		out = append(out, questions[ix])
	}
	return out
}

// BuildQuestion synthesizes the options for one record. The boolean is false
// when the answer is not numeric, or too large to tell neighbours apart; the
// returned question then carries the answer as its only option.
func (l *Loader) BuildQuestion(rec Record) (QuizQuestion, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buildQuestion(rec)
}

func (l *Loader) buildQuestion(rec Record) (QuizQuestion, bool) {
	q := QuizQuestion{
		Prompt:      rec.SourceText,
		Explanation: explanationPrefix + rec.Derivation,
	}

	value, ok := parseNumeric(string(rec.Answer))
	if !ok {
		raw := string(rec.Answer)
		q.Options = []string{raw}
		q.CorrectOption = raw
		return q, false
	}

	integer := isInteger(value)
	correct := formatValue(value, integer)
	decoys, filled := generateDecoys(l.rng, value, integer)
	if !filled {
		q.Options = []string{correct}
		q.CorrectOption = correct
		return q, false
	}
	options := append(decoys, correct)
	l.rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	q.Options = options
	q.CorrectOption = correct
	return q, true
}

// Placeholder is served when the bank cannot be read.
func Placeholder(count int) []QuizQuestion {
	if count <= 0 {
		return []QuizQuestion{}
	}
	out := make([]QuizQuestion, count)
	for i := range out {
		out[i] = QuizQuestion{
			Prompt:        "測試題目 1+1=?",
			Options:       []string{"1", "2", "3", "4"},
			CorrectOption: "2",
			Explanation:   explanationPrefix + "1+1=2",
		}
	}
	return out
}

// Source binds a loader to a bank path and falls back to placeholder content
// when the bank is unavailable.
type Source struct {
	loader *Loader
	path   string
}

func (l *Loader) Source(path string) *Source {
	return &Source{loader: l, path: path}
}

func (s *Source) Quiz(ctx context.Context, count int) []QuizQuestion {
	questions, err := s.loader.Load(ctx, s.path, count)
	if err != nil {
		s.loader.log.Warn("question bank unavailable, serving placeholder quiz", "path", s.path, "error", err)
		return Placeholder(count)
	}
	return questions
}
