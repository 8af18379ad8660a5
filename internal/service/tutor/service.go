// Package tutor generates tutor replies and the vocabulary keywords they
// highlight.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
	"github.com/zhouzirui/language-partner/backend/internal/model/tutor"
)

// ErrEmptyReply is returned when the model answers with blank content.
var ErrEmptyReply = errors.New("tutor reply is empty")

// Config 控制对话上下文的大小。
type Config struct {
	HistoryLimit int
}

const defaultHistoryLimit = 10

// Service runs the reply and keyword-extraction chains.
type Service struct {
	chatModel    model.ChatModel
	cfg          Config
	prompts      *PromptBuilder
	replyChain   compose.Runnable[map[string]any, *schema.Message]
	keywordChain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles both chains on top of chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	replyTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)
	replyChain := compose.NewChain[map[string]any, *schema.Message]()
	replyChain.AppendChatTemplate(replyTemplate)
	replyChain.AppendChatModel(chatModel)
	replyRunnable, err := replyChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	keywordTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{instruction}"),
		schema.UserMessage("{text}"),
	)
	keywordChain := compose.NewChain[map[string]any, *schema.Message]()
	keywordChain.AppendChatTemplate(keywordTemplate)
	keywordChain.AppendChatModel(chatModel)
	keywordRunnable, err := keywordChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile keyword chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		cfg:          cfg,
		prompts:      NewPromptBuilder(),
		replyChain:   replyRunnable,
		keywordChain: keywordRunnable,
	}, nil
}

// ChatModel 返回底层模型，供翻译链复用。
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// Reply generates the tutor's answer to utterance and the keywords it wants
// to highlight. Keyword extraction never fails the reply.
func (s *Service) Reply(ctx context.Context, profile tutor.Profile, history []chat.MessageEntry, utterance string) (*chat.Reply, error) {
	input := map[string]any{
		"system":  s.prompts.SystemPrompt(profile),
		"history": s.buildHistoryMessages(history),
		"query":   utterance,
	}

	resp, err := s.replyChain.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run reply chain: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, ErrEmptyReply
	}

	keywords := s.ExtractKeywords(ctx, profile, text)
	log.Printf("[tutor] reply for tutor=%s length=%d keywords=%d", profile.ID, len(text), len(keywords))
	return &chat.Reply{Text: text, Keywords: keywords}, nil
}

// ExtractKeywords asks the model for vocabulary in text. Failures are logged
// and produce an empty list.
func (s *Service) ExtractKeywords(ctx context.Context, profile tutor.Profile, text string) []string {
	resp, err := s.keywordChain.Invoke(ctx, map[string]any{
		"instruction": s.prompts.KeywordPrompt(profile),
		"text":        text,
	})
	if err != nil {
		log.Printf("[tutor] keyword extraction failed: %v", err)
		return []string{}
	}
	return ParseKeywords(resp.Content)
}

// ForProfile binds the service to one tutor profile.
func (s *Service) ForProfile(profile tutor.Profile) *Responder {
	return &Responder{svc: s, profile: profile}
}

func (s *Service) buildHistoryMessages(entries []chat.MessageEntry) []*schema.Message {
	if len(entries) == 0 {
		return nil
	}

	start := 0
	if len(entries) > s.cfg.HistoryLimit {
		start = len(entries) - s.cfg.HistoryLimit
	}

	history := make([]*schema.Message, 0, len(entries)-start)
	for _, entry := range entries[start:] {
		switch entry.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(entry.Text))
		case chat.RoleBot:
			history = append(history, schema.AssistantMessage(entry.Text, nil))
		}
	}
	return history
}

// Responder is a Service bound to a tutor profile.
type Responder struct {
	svc     *Service
	profile tutor.Profile
}

// Respond generates a reply for the bound profile.
func (r *Responder) Respond(ctx context.Context, history []chat.MessageEntry, utterance string) (*chat.Reply, error) {
	return r.svc.Reply(ctx, r.profile, history, utterance)
}
