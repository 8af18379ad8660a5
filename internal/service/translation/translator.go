// Package translation talks to the external translation capability, one text
// unit per call.
package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText is returned when there is nothing to translate.
var ErrEmptyText = errors.New("translation text is empty")

// Translator converts a single text unit into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// StatusError reports a non-success response from a translation backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("translation gateway returned status %d", e.Code)
	}
	return fmt.Sprintf("translation gateway returned status %d: %s", e.Code, e.Body)
}

// Bound fixes the target language of a Translator so it can be handed to the
// pipeline, which only deals with single-text requests.
type Bound struct {
	translator Translator
	target     string
}

// Bind 绑定目标语言。
func Bind(t Translator, targetLang string) *Bound {
	targetLang = strings.TrimSpace(targetLang)
	if targetLang == "" {
		targetLang = DefaultTargetLanguage
	}
	return &Bound{translator: t, target: targetLang}
}

// DefaultTargetLanguage is the learner's language when none is configured.
const DefaultTargetLanguage = "en"

// Translate forwards to the wrapped translator.
func (b *Bound) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return b.translator.Translate(ctx, text, b.target)
}

// Target returns the bound language.
func (b *Bound) Target() string {
	return b.target
}
