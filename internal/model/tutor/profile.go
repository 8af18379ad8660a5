package tutor

// Profile describes a tutoring scenario the learner can pick from the sidebar.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Language     string `json:"language"`     // BCP-47 tag used for ASR/TTS, e.g. ja-JP
	LanguageName string `json:"languageName"` // human readable name used in prompts
	Scenario     string `json:"scenario"`
	PromptHint   string `json:"promptHint"`
	OpeningLine  string `json:"openingLine"`
	VoiceID      string `json:"voiceId,omitempty"`
}

// DefaultID 是未指定场景时使用的日语导师。
const DefaultID = "japanese-cafe"

// Seed provides the built-in tutor profiles.
func Seed() []Profile {
	return []Profile{
		{
			ID:           DefaultID,
			Name:         "Yuki",
			Title:        "Japanese conversation partner",
			Language:     "ja-JP",
			LanguageName: "Japanese",
			Scenario:     "Ordering coffee and chatting with a barista in a small Tokyo cafe.",
			PromptHint:   "Keep sentences short and polite (desu/masu form). Ask one question at a time.",
			OpeningLine:  "いらっしゃいませ！今日は何を飲みますか？",
			VoiceID:      "tokyo-cafe-host",
		},
		{
			ID:           "japanese-travel",
			Name:         "Kenji",
			Title:        "Japanese travel guide",
			Language:     "ja-JP",
			LanguageName: "Japanese",
			Scenario:     "Asking for directions and buying train tickets while travelling in Kyoto.",
			PromptHint:   "Use everyday travel vocabulary. Gently correct mistakes by repeating the right phrase.",
			OpeningLine:  "こんにちは！京都へようこそ。どこへ行きたいですか？",
			VoiceID:      "kyoto-guide",
		},
		{
			ID:           "spanish-small-talk",
			Name:         "Lucía",
			Title:        "Spanish small-talk partner",
			Language:     "es-ES",
			LanguageName: "Spanish",
			Scenario:     "Meeting a new neighbour in Madrid and talking about hobbies.",
			PromptHint:   "Prefer present tense and common verbs. Keep the tone warm and curious.",
			OpeningLine:  "¡Hola! Soy Lucía, tu nueva vecina. ¿Qué te gusta hacer los fines de semana?",
			VoiceID:      "madrid-neighbour",
		},
	}
}
