package discovery

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// ChoiceRegistry holds the process-wide default user choices. New sessions
// take a snapshot at start; later registry changes do not reach them.
type ChoiceRegistry struct {
	mu      sync.RWMutex
	choices domain.UserChoices
}

// NewChoiceRegistry creates a registry seeded with initial.
func NewChoiceRegistry(initial domain.UserChoices) *ChoiceRegistry {
	if initial == nil {
		initial = domain.DefaultUserChoices()
	}
	return &ChoiceRegistry{choices: initial.Clone()}
}

// LoadChoices reads a flat YAML mapping of choice keys to values and
// overlays it on the defaults.
func LoadChoices(path string) (domain.UserChoices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user choices: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse user choices %s: %w", path, err)
	}
	return domain.DefaultUserChoices().Merge(overrides), nil
}

// Snapshot returns a copy of the current choices.
func (r *ChoiceRegistry) Snapshot() domain.UserChoices {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.choices.Clone()
}

// Set assigns one choice. The key must be non-blank.
func (r *ChoiceRegistry) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: choice key cannot be empty", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choices[key] = value
	return nil
}

// Merge overlays values on the current choices.
func (r *ChoiceRegistry) Merge(values map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choices = r.choices.Merge(values)
}
