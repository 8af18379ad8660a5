package pipeline

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/zhouzirui/language-partner/backend/internal/annotate"
	"github.com/zhouzirui/language-partner/backend/internal/history"
)

var errEmptyTranslation = errors.New("translator returned no text")

// RequestFullTranslation returns the cached full translation of an entry or
// fetches it. Concurrent requests for the same entry share one call; the
// result is cached on the entry only when it succeeds.
func (p *Pipeline) RequestFullTranslation(ctx context.Context, id string) (string, error) {
	entry, ok := p.deps.Store.Get(id)
	if !ok {
		return "", ErrEntryNotFound
	}
	if entry.HasFullTranslation() {
		return entry.FullTranslation, nil
	}

	ch := p.inflight.DoChan(id, func() (any, error) {
		if cached, ok := p.deps.Store.Get(id); ok && cached.HasFullTranslation() {
			return cached.FullTranslation, nil
		}

		translated, err := p.translateFull(entry.Text)
		if err != nil {
			return "", &TransportError{Stage: StageFullTranslation, Err: err}
		}
		translated = strings.TrimSpace(html.UnescapeString(translated))
		if translated == "" {
			return "", &TransportError{Stage: StageFullTranslation, Err: errEmptyTranslation}
		}

		if !p.deps.Store.Patch(id, history.WithFullTranslation(translated)) {
			return "", ErrEntryNotFound
		}
		return translated, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// translateFull runs the gateway call for a full translation. It is decoupled
// from the caller's ctx so one cancelled caller does not fail the others.
func (p *Pipeline) translateFull(text string) (translated string, err error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.StageTimeout)
	defer cancel()

	ctx, end := p.inst.stage(ctx, StageFullTranslation)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("full translation panic: %v", r)
		}
		end(err)
	}()

	return p.deps.Translator.Translate(ctx, text)
}

// KeywordTranslation looks up the stored translation of keyword on an entry.
func (p *Pipeline) KeywordTranslation(id, keyword string) (string, bool) {
	entry, ok := p.deps.Store.Get(id)
	if !ok {
		return "", false
	}
	return annotate.Lookup(entry.KeywordTranslations, keyword)
}

// Segments splits an entry's text around its keywords.
func (p *Pipeline) Segments(id string) ([]annotate.Segment, error) {
	entry, ok := p.deps.Store.Get(id)
	if !ok {
		return nil, ErrEntryNotFound
	}
	return annotate.Annotate(entry.Text, entry.Keywords, entry.KeywordTranslations), nil
}
