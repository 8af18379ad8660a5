package app

import (
	"context"
	"testing"
	"time"

	"github.com/zhouzirui/language-partner/backend/internal/config"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
)

func offlineConfig() *config.Config {
	return &config.Config{
		Translation: config.TranslationConfig{Provider: config.TranslationProviderLLM, TargetLanguage: "en"},
		Tutor:       config.TutorConfig{HistoryLimit: 4, KeywordConcurrency: 2, StageTimeout: time.Second},
		Speech:      config.SpeechConfig{Stub: true},
		Audio:       config.AudioConfig{MaxItems: 8, TTL: time.Minute},
	}
}

func TestBuildWithoutCredentials(t *testing.T) {
	components, err := Build(context.Background(), offlineConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer components.Sessions.CloseAll()

	if components.Speech == nil {
		t.Fatalf("stub speech engine expected")
	}

	conv, err := components.Sessions.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	turn := conv.Pipeline.SubmitUtterance("こんにちは", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := turn.Wait(ctx); err != nil {
		t.Fatalf("turn: %v", err)
	}

	bot, ok := conv.Store.Get(turn.BotEntryID())
	if !ok {
		t.Fatalf("bot entry missing")
	}
	if !bot.HasAudio() {
		t.Fatalf("stub engine should voice the reply")
	}
	if _, ok := components.Clips.Get(bot.AudioRef); !ok {
		t.Fatalf("audio ref %q not in clip store", bot.AudioRef)
	}
}

func TestBuildTranslatorProviders(t *testing.T) {
	tr, err := buildTranslator(context.Background(), nil, config.TranslationConfig{Provider: config.TranslationProviderHTTP, URL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("buildTranslator: %v", err)
	}
	if _, ok := tr.(*translation.HTTPTranslator); !ok {
		t.Fatalf("expected HTTP translator, got %T", tr)
	}

	tr, err = buildTranslator(context.Background(), nil, config.TranslationConfig{Provider: config.TranslationProviderLLM})
	if err != nil {
		t.Fatalf("buildTranslator: %v", err)
	}
	if _, ok := tr.(*translation.StubTranslator); !ok {
		t.Fatalf("expected stub fallback without a chat model, got %T", tr)
	}
}
