package chat

import "time"

// Role 标识消息的发送方。
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// MessageEntry is one utterance in a session's conversation history.
//
// ID, Role, Text, Keywords and CreatedAt are fixed at creation. AudioRef,
// FullTranslation and KeywordTranslations are filled in later by the
// pipeline stage that produces them.
type MessageEntry struct {
	ID                  string            `json:"id"`
	Role                Role              `json:"role"`
	Text                string            `json:"text"`
	AudioRef            string            `json:"audioRef,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	FullTranslation     string            `json:"fullTranslation,omitempty"`
	Keywords            []string          `json:"keywords"`
	KeywordTranslations map[string]string `json:"keywordTranslations,omitempty"`
}

// HasAudio 是否已经关联可播放的音频。
func (m MessageEntry) HasAudio() bool {
	return m.AudioRef != ""
}

// HasFullTranslation reports whether the full translation was cached.
func (m MessageEntry) HasFullTranslation() bool {
	return m.FullTranslation != ""
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (m MessageEntry) Clone() MessageEntry {
	out := m
	if m.Keywords != nil {
		out.Keywords = append([]string(nil), m.Keywords...)
	} else {
		out.Keywords = []string{}
	}
	if m.KeywordTranslations != nil {
		out.KeywordTranslations = make(map[string]string, len(m.KeywordTranslations))
		for k, v := range m.KeywordTranslations {
			out.KeywordTranslations[k] = v
		}
	}
	return out
}
