package stack

import (
	"fmt"
	"regexp"
)

// Memory strategy kind constants.
const (
	StrategyUserPreference = "user_preference"
	StrategySemantic       = "semantic"
	StrategySummarization  = "summarization"
)

// validStrategyKinds lists the recognized strategy kinds.
var validStrategyKinds = map[string]bool{
	StrategyUserPreference: true,
	StrategySemantic:       true,
	StrategySummarization:  true,
}

// recognizedPlaceholders lists the placeholder tokens allowed inside memory
// namespace templates. Anything else is rejected at validation time.
var recognizedPlaceholders = map[string]bool{
	"actorId":    true,
	"sessionId":  true,
	"strategyId": true,
}

// placeholderRe matches {token} placeholders inside a namespace template.
var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// Memory event expiry range constants.
const (
	minEventExpiryDays     = 3
	maxEventExpiryDays     = 365
	defaultEventExpiryDays = 30
)

// MemoryStrategy is a named extraction policy applied to conversational data,
// scoped by one or more namespace templates.
type MemoryStrategy struct {
	Kind       string   `yaml:"kind"`
	Name       string   `yaml:"name"`
	Namespaces []string `yaml:"namespaces"`
}

// MemoryConfig holds the memory resource configuration for the deployment.
type MemoryConfig struct {
	Strategies      []MemoryStrategy `yaml:"strategies"`
	EventExpiryDays int32            `yaml:"event_expiry_days,omitempty"`
}

// DefaultStrategies returns the strategy set used when the config does not
// declare one: user preferences and semantic facts per actor, plus per-session
// summaries.
func DefaultStrategies() []MemoryStrategy {
	return []MemoryStrategy{
		{
			Kind:       StrategyUserPreference,
			Name:       "UserPreferences",
			Namespaces: []string{"/users/{actorId}/preferences"},
		},
		{
			Kind:       StrategySemantic,
			Name:       "SemanticFacts",
			Namespaces: []string{"/users/{actorId}/facts"},
		},
		{
			Kind:       StrategySummarization,
			Name:       "SessionSummaries",
			Namespaces: []string{"/summaries/{actorId}/{sessionId}"},
		},
	}
}

// validate checks the memory configuration: recognized kinds, unique strategy
// names within the descriptor, recognized namespace placeholders, and the
// event expiry range.
func (m *MemoryConfig) validate() []string {
	var errs []string

	seen := make(map[string]bool, len(m.Strategies))
	for i, s := range m.Strategies {
		if !validStrategyKinds[s.Kind] {
			errs = append(errs, fmt.Sprintf("memory: strategy %d has invalid kind %q", i, s.Kind))
		}
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("memory: strategy %d has no name", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("memory: duplicate strategy name %q", s.Name))
		}
		seen[s.Name] = true

		if len(s.Namespaces) == 0 {
			errs = append(errs, fmt.Sprintf("memory: strategy %q has no namespaces", s.Name))
		}
		for _, ns := range s.Namespaces {
			if err := validateNamespaceTemplate(ns); err != nil {
				errs = append(errs, fmt.Sprintf("memory: strategy %q: %s", s.Name, err))
			}
		}
	}

	if m.EventExpiryDays != 0 {
		if m.EventExpiryDays < minEventExpiryDays || m.EventExpiryDays > maxEventExpiryDays {
			errs = append(errs, fmt.Sprintf(
				"memory: event_expiry_days %d must be between %d and %d",
				m.EventExpiryDays, minEventExpiryDays, maxEventExpiryDays))
		}
	}

	return errs
}

// validateNamespaceTemplate checks that a namespace template uses only
// recognized placeholder tokens.
func validateNamespaceTemplate(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace template must not be empty")
	}
	for _, match := range placeholderRe.FindAllStringSubmatch(ns, -1) {
		token := match[1]
		if !recognizedPlaceholders[token] {
			return fmt.Errorf("namespace %q uses unrecognized placeholder {%s}", ns, token)
		}
	}
	return nil
}

// expiryDays returns the configured event expiry or the default.
func (m *MemoryConfig) expiryDays() int32 {
	if m.EventExpiryDays > 0 {
		return m.EventExpiryDays
	}
	return defaultEventExpiryDays
}
