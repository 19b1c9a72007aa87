package question

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlBankFile is the top-level YAML structure for question bank files.
type yamlBankFile struct {
	Questions []yamlQuestion `yaml:"questions"`
}

// yamlQuestion is the YAML representation of a question.
type yamlQuestion struct {
	Subject    string   `yaml:"subject"`
	Difficulty string   `yaml:"difficulty"`
	Prompt     string   `yaml:"prompt"`
	Options    []string `yaml:"options"`
	Correct    int      `yaml:"correct"`
	Weight     int      `yaml:"weight"`
	TimeLimit  string   `yaml:"time_limit"`
}

// LoadBankFromFile reads and validates a single question bank YAML file.
//
// Precondition: path must point to a valid YAML bank file.
// Postcondition: Returns validated questions or a non-nil error.
func LoadBankFromFile(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bank file %s: %w", path, err)
	}
	qs, err := LoadBankFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading bank from %s: %w", path, err)
	}
	return qs, nil
}

// LoadBankFromBytes parses and validates a question bank from YAML bytes.
// Weight defaults to 1 and time_limit to 30s when omitted.
//
// Postcondition: Every returned question passes Validate.
func LoadBankFromBytes(data []byte) ([]Question, error) {
	var file yamlBankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing bank YAML: %w", err)
	}
	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("bank contains no questions")
	}

	qs := make([]Question, 0, len(file.Questions))
	for i, yq := range file.Questions {
		q, err := convertYAMLQuestion(yq)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// LoadBanksFromDir loads all YAML files in a directory as question banks.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns all validated questions or the first error
// encountered.
func LoadBanksFromDir(dir string) ([]Question, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading bank directory %s: %w", dir, err)
	}

	var qs []Question
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		bank, err := LoadBankFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		qs = append(qs, bank...)
	}

	if len(qs) == 0 {
		return nil, fmt.Errorf("no question banks found in %s", dir)
	}
	return qs, nil
}

// convertYAMLQuestion converts the parsed YAML structure into the domain type.
func convertYAMLQuestion(yq yamlQuestion) (Question, error) {
	if len(yq.Options) != OptionCount {
		return Question{}, fmt.Errorf("expected %d options, got %d", OptionCount, len(yq.Options))
	}
	if yq.Subject == "" {
		return Question{}, fmt.Errorf("subject must not be empty")
	}
	if yq.Difficulty == "" {
		return Question{}, fmt.Errorf("difficulty must not be empty")
	}

	q := Question{
		Subject:    yq.Subject,
		Difficulty: yq.Difficulty,
		Prompt:     yq.Prompt,
		Correct:    yq.Correct,
		Weight:     yq.Weight,
		TimeLimit:  30 * time.Second,
	}
	copy(q.Options[:], yq.Options)
	if q.Weight == 0 {
		q.Weight = 1
	}
	if yq.TimeLimit != "" {
		d, err := time.ParseDuration(yq.TimeLimit)
		if err != nil {
			return Question{}, fmt.Errorf("invalid time_limit %q: %w", yq.TimeLimit, err)
		}
		q.TimeLimit = d
	}
	return q, nil
}
