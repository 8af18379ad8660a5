package tutor

import "strings"

// MaxKeywords caps how many vocabulary items a single reply highlights.
const MaxKeywords = 12

// ParseKeywords splits the extraction output into an ordered keyword list.
// Latin, fullwidth and ideographic commas as well as newlines separate items;
// surrounding quotes and punctuation are stripped and duplicates are removed
// case-insensitively.
func ParseKeywords(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', '，', '、', '\n', ';', '；':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		kw := strings.Trim(strings.TrimSpace(field), "\"'`“”「」。.・-*")
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, kw)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}
