package translation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const llmTranslatePrompt = `You are a professional translator. Translate the user's text into the language with code {target}.
Reply with the translation only, without quotes, notes or romanization.`

// LLMTranslator translates through the chat model used by the tutor.
type LLMTranslator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMTranslator compiles the translation chain on top of chatModel.
func NewLLMTranslator(ctx context.Context, chatModel model.ChatModel) (*LLMTranslator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required for llm translation")
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(llmTranslatePrompt),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile translation chain: %w", err)
	}
	return &LLMTranslator{chain: runnable}, nil
}

// Translate implements Translator.
func (t *LLMTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	resp, err := t.chain.Invoke(ctx, map[string]any{
		"target": targetLang,
		"text":   text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run translation chain: %w", err)
	}

	translated := strings.TrimSpace(resp.Content)
	log.Printf("[translation] llm translated %d chars into %s", len(text), targetLang)
	return translated, nil
}
