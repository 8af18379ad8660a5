// Package app assembles the services shared by the API server and the CLI
// tools from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/language-partner/backend/internal/config"
	tutormodel "github.com/zhouzirui/language-partner/backend/internal/model/tutor"
	"github.com/zhouzirui/language-partner/backend/internal/pipeline"
	"github.com/zhouzirui/language-partner/backend/internal/service/audio"
	chatservice "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	"github.com/zhouzirui/language-partner/backend/internal/service/speech"
	"github.com/zhouzirui/language-partner/backend/internal/service/translation"
	tutorservice "github.com/zhouzirui/language-partner/backend/internal/service/tutor"
)

// Components are the long-lived services of the process.
type Components struct {
	Tutors   *tutormodel.MemoryStore
	Sessions *chatservice.Service
	Clips    *audio.Store
	// Speech is nil when neither Volcengine credentials nor the stub are configured.
	Speech speech.Engine
}

// Build initializes every service. Missing credentials degrade to local
// stand-ins instead of failing, mirroring how the server starts without AI.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	tutors := tutormodel.NewMemoryStore(tutormodel.Seed())

	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		cm, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			chatModel = cm
			log.Println("chat model initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，使用占位导师回复")
	}

	responders, err := buildResponders(ctx, chatModel, cfg.Tutor)
	if err != nil {
		return nil, err
	}

	translator, err := buildTranslator(ctx, chatModel, cfg.Translation)
	if err != nil {
		return nil, err
	}

	var engine speech.Engine
	switch {
	case cfg.Speech.Enabled:
		engine = speech.NewService(cfg.Speech.Model())
		log.Println("Speech service initialized successfully")
	case cfg.Speech.Stub:
		engine = speech.NewStubEngine()
		log.Println("语音服务使用本地占位引擎")
	default:
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	clips := audio.NewStore(cfg.Audio.MaxItems, cfg.Audio.TTL)

	sessions := chatservice.NewService(chatservice.Dependencies{
		Tutors:         tutors,
		Responders:     responders,
		Translator:     translator,
		TargetLanguage: cfg.Translation.TargetLanguage,
		Speech:         engine,
		Clips:          clips,
		Pipeline: pipeline.Config{
			KeywordConcurrency: cfg.Tutor.KeywordConcurrency,
			StageTimeout:       cfg.Tutor.StageTimeout,
		},
	})

	return &Components{
		Tutors:   tutors,
		Sessions: sessions,
		Clips:    clips,
		Speech:   engine,
	}, nil
}

func buildResponders(ctx context.Context, chatModel model.ChatModel, cfg config.TutorConfig) (chatservice.ResponderFactory, error) {
	if chatModel == nil {
		return func(profile tutormodel.Profile) pipeline.Responder {
			return tutorservice.NewStubResponder(profile)
		}, nil
	}

	svc, err := tutorservice.NewService(ctx, chatModel, tutorservice.Config{HistoryLimit: cfg.HistoryLimit})
	if err != nil {
		return nil, fmt.Errorf("init tutor service: %w", err)
	}
	return func(profile tutormodel.Profile) pipeline.Responder {
		return svc.ForProfile(profile)
	}, nil
}

func buildTranslator(ctx context.Context, chatModel model.ChatModel, cfg config.TranslationConfig) (translation.Translator, error) {
	switch cfg.Provider {
	case config.TranslationProviderHTTP:
		log.Printf("[translation] using gateway %s", cfg.URL)
		return translation.NewHTTPTranslator(cfg.URL, cfg.Timeout), nil
	case config.TranslationProviderLLM:
		if chatModel == nil {
			log.Println("[translation] chat model unavailable, falling back to stub translator")
			return translation.NewStubTranslator(nil), nil
		}
		t, err := translation.NewLLMTranslator(ctx, chatModel)
		if err != nil {
			return nil, fmt.Errorf("init llm translator: %w", err)
		}
		return t, nil
	default:
		return translation.NewStubTranslator(nil), nil
	}
}
