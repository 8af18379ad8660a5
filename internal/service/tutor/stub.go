package tutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
	"github.com/zhouzirui/language-partner/backend/internal/model/tutor"
)

// StubResponder answers without a chat model. It is used when Ark
// credentials are missing so the rest of the turn can still be exercised.
type StubResponder struct {
	profile tutor.Profile
}

// NewStubResponder 创建不依赖模型的占位导师。
func NewStubResponder(profile tutor.Profile) *StubResponder {
	return &StubResponder{profile: profile}
}

// Respond echoes the utterance inside a fixed follow-up question.
func (s *StubResponder) Respond(_ context.Context, history []chat.MessageEntry, utterance string) (*chat.Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, fmt.Errorf("utterance is empty")
	}

	if strings.HasPrefix(s.profile.Language, "es") {
		return &chat.Reply{
			Text:     fmt.Sprintf("Has dicho «%s». ¿Puedes contarme más?", utterance),
			Keywords: []string{"dicho", "contarme"},
		}, nil
	}
	return &chat.Reply{
		Text:     fmt.Sprintf("「%s」ですね。もっと教えてください！", utterance),
		Keywords: []string{"もっと", "教えて"},
	}, nil
}
