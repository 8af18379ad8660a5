package chat

// Reply is what the response-generation service returns for one utterance.
type Reply struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}
