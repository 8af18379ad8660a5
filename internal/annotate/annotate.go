// Package annotate splits reply text into literal runs and keyword runs so the
// presentation layer can overlay per-keyword glosses.
package annotate

import (
	"regexp"
	"strings"
)

// Kind 标识片段类型。
type Kind string

const (
	KindText    Kind = "text"
	KindKeyword Kind = "keyword"
)

// Segment is one run of the annotated text. Text keeps the original casing;
// Keyword is the canonical keyword as supplied by the caller.
type Segment struct {
	Kind        Kind   `json:"kind"`
	Text        string `json:"text"`
	Keyword     string `json:"keyword,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// Matcher holds the compiled keyword alternation.
type Matcher struct {
	pattern   *regexp.Regexp
	canonical map[string]string // lowercased keyword -> keyword as given
	keywords  []string
}

// Compile builds a Matcher for the keywords. Blank keywords are ignored and
// duplicates are collapsed case-insensitively, keeping the first spelling.
// Matching is case-insensitive and leftmost-longest: at a given start
// position the longest keyword wins, so "ab" with keywords "a" and "ab"
// yields a single "ab" run.
func Compile(keywords []string) *Matcher {
	m := &Matcher{canonical: make(map[string]string, len(keywords))}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, seen := m.canonical[key]; seen {
			continue
		}
		m.canonical[key] = kw
		m.keywords = append(m.keywords, kw)
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return m
	}

	// QuoteMeta output always compiles.
	m.pattern = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	m.pattern.Longest()
	return m
}

// Keywords returns the normalised keyword list used by the matcher.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Annotate partitions text. Empty text yields no segments; a matcher without
// keywords yields a single literal segment.
func (m *Matcher) Annotate(text string, translations map[string]string) []Segment {
	if text == "" {
		return []Segment{}
	}
	if m.pattern == nil {
		return []Segment{{Kind: KindText, Text: text}}
	}

	matches := m.pattern.FindAllStringIndex(text, -1)
	segments := make([]Segment, 0, 2*len(matches)+1)
	cursor := 0
	for _, loc := range matches {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}
		if start > cursor {
			segments = append(segments, Segment{Kind: KindText, Text: text[cursor:start]})
		}
		raw := text[start:end]
		keyword := m.canonicalFor(raw)
		segments = append(segments, Segment{
			Kind:        KindKeyword,
			Text:        raw,
			Keyword:     keyword,
			Translation: lookup(translations, keyword),
		})
		cursor = end
	}
	if cursor < len(text) {
		segments = append(segments, Segment{Kind: KindText, Text: text[cursor:]})
	}
	return segments
}

// Annotate is a convenience wrapper around Compile(keywords).Annotate.
func Annotate(text string, keywords []string, translations map[string]string) []Segment {
	return Compile(keywords).Annotate(text, translations)
}

// Join concatenates the segment texts back into the source string.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

func (m *Matcher) canonicalFor(raw string) string {
	if kw, ok := m.canonical[strings.ToLower(raw)]; ok {
		return kw
	}
	// regexp folding is not identical to strings.ToLower for a few runes.
	for _, kw := range m.keywords {
		if strings.EqualFold(kw, raw) {
			return kw
		}
	}
	return raw
}

// lookup reads the gloss under the keyword as given, then its lowercase form.
// A missing gloss is rendered as nothing.
func lookup(translations map[string]string, keyword string) string {
	if translations == nil {
		return ""
	}
	if v, ok := translations[keyword]; ok {
		return v
	}
	if v, ok := translations[strings.ToLower(keyword)]; ok {
		return v
	}
	return ""
}

// Lookup exposes the gloss lookup used for keyword runs, falling back to a
// case-insensitive scan so a clicked run finds its translation regardless of
// how the reply cased it.
func Lookup(translations map[string]string, keyword string) (string, bool) {
	keyword = strings.TrimSpace(keyword)
	if v := lookup(translations, keyword); v != "" {
		return v, true
	}
	for k, v := range translations {
		if strings.EqualFold(k, keyword) {
			return v, true
		}
	}
	return "", false
}
