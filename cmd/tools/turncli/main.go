// turncli drives tutoring turns from the terminal against the configured
// services, or exercises the speech clients on their own.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/language-partner/backend/internal/annotate"
	"github.com/zhouzirui/language-partner/backend/internal/app"
	"github.com/zhouzirui/language-partner/backend/internal/config"
	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/language-partner/backend/internal/service/chat"
	"github.com/zhouzirui/language-partner/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	mode := flag.String("mode", "chat", "运行模式: chat, asr 或 tts")
	tutorID := flag.String("tutor", "", "导师场景 ID，默认日语咖啡馆")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径 (chat 模式下作为语音提问)")
	text := flag.String("text", "", "单次提问或 TTS 文本；留空则从标准输入逐行读取")
	outDir := flag.String("out", "", "合成音频输出目录")
	translate := flag.Bool("translate", false, "回复后请求整句翻译")
	timeout := flag.Duration("timeout", 45*time.Second, "单轮超时时间")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	ctx := context.Background()
	components, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}
	defer components.Sessions.CloseAll()

	switch *mode {
	case "chat":
		runChat(ctx, components, *tutorID, *text, *audioPath, *outDir, *translate, *timeout)
	case "asr", "tts":
		if components.Speech == nil {
			log.Fatal("语音服务未启用，请配置 SPEECH_* 凭证或设置 SPEECH_STUB=true")
		}
		runSpeech(ctx, components.Speech, cfg, *mode, *audioPath, *text, *outDir, *timeout)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=chat|asr|tts 指定运行模式")
	}
}

func runChat(ctx context.Context, components *app.Components, tutorID, text, audioPath, outDir string, translate bool, timeout time.Duration) {
	conv, err := components.Sessions.CreateSession(ctx, tutorID)
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}
	fmt.Printf("%s (%s): %s\n", conv.Profile.Name, conv.Profile.Title, conv.Profile.OpeningLine)

	events, stop := conv.Listen(64)
	defer stop()
	go watchPlayback(events, components, outDir)

	runTurn := func(submit func() error) {
		if err := submit(); err != nil {
			log.Printf("本轮失败: %v", err)
		}
	}

	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			log.Fatalf("读取音频失败: %v", err)
		}
		clip := speechmodel.Clip{Data: data, Format: formatOf(audioPath)}
		runTurn(func() error { return converse(ctx, conv, conv.Pipeline.SubmitAudio(clip), translate, timeout) })
		return
	}

	if text != "" {
		runTurn(func() error { return converse(ctx, conv, conv.Pipeline.SubmitUtterance(text, ""), translate, timeout) })
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			return
		}
		runTurn(func() error { return converse(ctx, conv, conv.Pipeline.SubmitUtterance(line, ""), translate, timeout) })
		fmt.Print("> ")
	}
}

type turn interface {
	UserEntryID() string
	BotEntryID() string
	Err() error
	Wait(ctx context.Context) error
}

func converse(ctx context.Context, conv *chatservice.Conversation, t turn, translate bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.Wait(ctx); err != nil {
		return err
	}

	user, _ := conv.Store.Get(t.UserEntryID())
	fmt.Printf("you: %s\n", user.Text)

	segments, err := conv.Pipeline.Segments(t.BotEntryID())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", conv.Profile.Name, render(segments))

	if translate {
		translated, err := conv.Pipeline.RequestFullTranslation(ctx, t.BotEntryID())
		if err != nil {
			return fmt.Errorf("整句翻译失败: %w", err)
		}
		fmt.Printf("   = %s\n", translated)
	}
	return nil
}

// render marks keywords as keyword[translation].
func render(segments []annotate.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
		if seg.Kind == annotate.KindKeyword && seg.Translation != "" {
			fmt.Fprintf(&b, "[%s]", seg.Translation)
		}
	}
	return b.String()
}

func watchPlayback(events <-chan chatservice.Notification, components *app.Components, outDir string) {
	for n := range events {
		if n.Type != chatservice.NotifyPlay || n.Entry == nil {
			continue
		}
		clip, ok := components.Clips.Get(n.Entry.AudioRef)
		if !ok {
			continue
		}
		if outDir == "" {
			fmt.Printf("   ▶ audio ready (%s, %d bytes)\n", clip.Format, len(clip.Data))
			continue
		}
		path := filepath.Join(outDir, n.Entry.ID+"."+clip.Format)
		if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
			log.Printf("写入音频文件失败: %v", err)
			continue
		}
		fmt.Printf("   ▶ %s\n", path)
	}
}

func runSpeech(ctx context.Context, engine speech.Engine, cfg *config.Config, mode, audioPath, text, outDir string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())

	if mode == "asr" {
		if audioPath == "" {
			log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
		}
		file, err := os.Open(audioPath)
		if err != nil {
			log.Fatalf("打开音频文件失败: %v", err)
		}
		defer file.Close()

		log.Printf("开始进行 ASR 测试: session=%s language=%s", sessionID, cfg.Speech.ASRLanguage)
		resp, err := engine.TranscribeAudio(ctx, &speechmodel.ASRRequest{
			SessionID: sessionID,
			AudioData: file,
			Format:    formatOf(audioPath),
			Language:  cfg.Speech.ASRLanguage,
		})
		if err != nil {
			log.Fatalf("ASR 调用失败: %v", err)
		}
		log.Printf("ASR 识别成功: text=%q confidence=%.2f", resp.Text, resp.Confidence)
		return
	}

	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	resp, err := engine.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     cfg.Speech.TTSVoice,
		Language:  cfg.Speech.TTSLanguage,
	})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	clip := resp.Clip()
	outputPath := filepath.Join(outDir, fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), clip.Format))
	if err := os.WriteFile(outputPath, clip.Data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}
	log.Printf("TTS 合成成功: 输出文件 %s, 时长=%dms", outputPath, resp.Duration)
}

func formatOf(path string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		return ext
	}
	return "wav"
}
