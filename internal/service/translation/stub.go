package translation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrStubFailure is returned for texts listed in StubConfig.Fail.
var ErrStubFailure = errors.New("stub translator failure")

// StubConfig configures the stub translator behavior.
type StubConfig struct {
	// Delay simulates gateway latency.
	Delay time.Duration
	// Dictionary maps [targetLang][sourceText] to a translation. Missing
	// entries return "[lang] " + text.
	Dictionary map[string]map[string]string
	// Fail lists source texts that always fail.
	Fail map[string]bool
}

// DefaultStubConfig returns a small Japanese to English dictionary.
func DefaultStubConfig() *StubConfig {
	return &StubConfig{
		Delay: 20 * time.Millisecond,
		Dictionary: map[string]map[string]string{
			"en": {
				"こんにちは":       "hello",
				"ありがとう":       "thank you",
				"コーヒー":        "coffee",
				"駅":           "station",
				"今日は何を飲みますか？": "What will you drink today?",
			},
		},
	}
}

// StubTranslator returns deterministic translations for development and tests.
type StubTranslator struct {
	config *StubConfig
	calls  atomic.Int64
}

// NewStubTranslator creates a stub with the given config; nil uses defaults.
func NewStubTranslator(config *StubConfig) *StubTranslator {
	if config == nil {
		config = DefaultStubConfig()
	}
	return &StubTranslator{config: config}
}

// Translate implements Translator.
func (s *StubTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	s.calls.Add(1)

	if s.config.Delay > 0 {
		select {
		case <-time.After(s.config.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if s.config.Fail[text] {
		return "", ErrStubFailure
	}
	if dict, ok := s.config.Dictionary[targetLang]; ok {
		if translated, ok := dict[text]; ok {
			return translated, nil
		}
	}
	return "[" + targetLang + "] " + text, nil
}

// Calls returns how many Translate calls were made.
func (s *StubTranslator) Calls() int64 {
	return s.calls.Load()
}
