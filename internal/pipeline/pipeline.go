// Package pipeline drives one conversation turn from the student's utterance
// to an annotated, voiced tutor reply. Each turn is a chain of stages that
// suspend on external services; every stage writes its result into the
// history store, which is the only shared state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/language-partner/backend/internal/history"
	"github.com/zhouzirui/language-partner/backend/internal/model/chat"
	"github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

// Responder produces the tutor reply and its keywords.
type Responder interface {
	Respond(ctx context.Context, history []chat.MessageEntry, utterance string) (*chat.Reply, error)
}

// Translator translates text into the session's target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Synthesizer voices a bot reply.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (speech.Clip, error)
}

// Transcriber converts a recorded clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip speech.Clip) (string, error)
}

// ClipStore keeps audio and returns the reference stored on entries.
type ClipStore interface {
	Put(clip speech.Clip) string
}

// Deps are the collaborators of a pipeline. Synthesizer and Transcriber are
// optional: without them replies carry no audio and SubmitAudio fails.
type Deps struct {
	Store       *history.Store
	Responder   Responder
	Translator  Translator
	Synthesizer Synthesizer
	Transcriber Transcriber
	Clips       ClipStore

	// OnTurnError is called once for every aborted turn.
	OnTurnError func(userEntryID string, err error)
}

// Config tunes concurrency and timeouts.
type Config struct {
	KeywordConcurrency int
	StageTimeout       time.Duration
}

const (
	defaultKeywordConcurrency = 4
	defaultStageTimeout       = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.KeywordConcurrency <= 0 {
		c.KeywordConcurrency = defaultKeywordConcurrency
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaultStageTimeout
	}
	return c
}

// Pipeline runs turns for a single session.
type Pipeline struct {
	deps Deps
	cfg  Config
	inst *instruments

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// tail is the settled channel of the most recently submitted turn; bot
	// entries are appended in submission order by waiting on it.
	seqMu sync.Mutex
	tail  <-chan struct{}

	inflight singleflight.Group
}

// New validates deps and creates a pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: history store is required")
	}
	if deps.Responder == nil {
		return nil, errors.New("pipeline: responder is required")
	}
	if deps.Translator == nil {
		return nil, errors.New("pipeline: translator is required")
	}
	if (deps.Synthesizer != nil || deps.Transcriber != nil) && deps.Clips == nil {
		return nil, errors.New("pipeline: clip store is required for speech")
	}

	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	close(settled)

	return &Pipeline{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		inst:   newInstruments(),
		ctx:    ctx,
		cancel: cancel,
		tail:   settled,
	}, nil
}

// SubmitUtterance appends the user entry immediately and processes the rest
// of the turn in the background.
func (p *Pipeline) SubmitUtterance(text, audioRef string) *Turn {
	text = strings.TrimSpace(text)
	if text == "" {
		return failedTurn(ErrEmptyUtterance)
	}
	if p.closed.Load() {
		return failedTurn(ErrClosed)
	}

	entry, err := p.deps.Store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: text, AudioRef: audioRef})
	if err != nil {
		return failedTurn(fmt.Errorf("append user entry: %w", err))
	}

	turn, prev := p.reserve()
	turn.setUserEntry(entry.ID)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.recoverTurn(turn, prev)
		p.converse(turn, prev, entry)
	}()
	return turn
}

// SubmitAudio transcribes clip and then continues like SubmitUtterance. The
// turn keeps its place in the reply order from the moment it is submitted.
func (p *Pipeline) SubmitAudio(clip speech.Clip) *Turn {
	if p.deps.Transcriber == nil {
		return failedTurn(ErrNoTranscriber)
	}
	if p.closed.Load() {
		return failedTurn(ErrClosed)
	}

	turn, prev := p.reserve()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.recoverTurn(turn, prev)

		ref := p.deps.Clips.Put(clip)
		text, err := p.transcribe(clip)
		if err != nil {
			p.fail(turn, prev, err)
			return
		}

		entry, err := p.deps.Store.Append(chat.MessageEntry{Role: chat.RoleUser, Text: text, AudioRef: ref})
		if err != nil {
			p.fail(turn, prev, fmt.Errorf("append user entry: %w", err))
			return
		}
		turn.setUserEntry(entry.ID)
		p.converse(turn, prev, entry)
	}()
	return turn
}

// Close cancels in-flight turns and waits for their goroutines to exit.
func (p *Pipeline) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) reserve() (*Turn, <-chan struct{}) {
	turn := newTurn()
	p.seqMu.Lock()
	prev := p.tail
	p.tail = turn.settled
	p.seqMu.Unlock()
	return turn, prev
}

func (p *Pipeline) transcribe(clip speech.Clip) (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.StageTimeout)
	defer cancel()

	ctx, end := p.inst.stage(ctx, StageTranscribe)
	text, err := p.deps.Transcriber.Transcribe(ctx, clip)
	end(err)
	if err != nil {
		return "", &TransportError{Stage: StageTranscribe, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// converse runs stages two to five for an appended user entry.
func (p *Pipeline) converse(turn *Turn, prev <-chan struct{}, user chat.MessageEntry) {
	ctx, span := p.inst.tracer.Start(p.ctx, "pipeline.turn",
		trace.WithAttributes(attribute.String("user_entry_id", user.ID)))
	defer span.End()

	reply, err := p.reply(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.fail(turn, prev, err)
		return
	}

	translations := p.translateKeywords(ctx, reply.Keywords)

	if !p.await(prev) {
		p.fail(turn, prev, ErrClosed)
		return
	}
	bot, err := p.deps.Store.Append(chat.MessageEntry{
		Role:                chat.RoleBot,
		Text:                reply.Text,
		Keywords:            reply.Keywords,
		KeywordTranslations: translations,
	})
	if err != nil {
		p.fail(turn, prev, &TransportError{Stage: StageAppend, Err: err})
		return
	}
	turn.settle()
	turn.markReplied(bot.ID)
	p.inst.turn(ctx, "replied")
	log.Printf("[pipeline] turn replied user=%s bot=%s keywords=%d", user.ID, bot.ID, len(reply.Keywords))

	p.synthesize(ctx, bot)
	turn.finish()
}

func (p *Pipeline) reply(ctx context.Context, user chat.MessageEntry) (*chat.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	ctx, end := p.inst.stage(ctx, StageReply)
	reply, err := p.deps.Responder.Respond(ctx, p.historyBefore(user.ID), user.Text)
	end(err)
	if err != nil {
		return nil, &TransportError{Stage: StageReply, Err: err}
	}
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		return nil, &TransportError{Stage: StageReply, Err: errors.New("empty reply")}
	}
	reply.Keywords = normalizeKeywords(reply.Keywords)
	return reply, nil
}

// normalizeKeywords trims keywords and drops blanks and case-insensitive
// duplicates, so glosses are keyed the way annotate matches them.
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// historyBefore returns the entries that precede id.
func (p *Pipeline) historyBefore(id string) []chat.MessageEntry {
	snapshot := p.deps.Store.Snapshot()
	for i, entry := range snapshot {
		if entry.ID == id {
			return snapshot[:i]
		}
	}
	return snapshot
}

// translateKeywords fans out one request per keyword. A failed request falls
// back to the keyword itself so the stage always succeeds.
func (p *Pipeline) translateKeywords(ctx context.Context, keywords []string) map[string]string {
	translations := make(map[string]string, len(keywords))
	if len(keywords) == 0 {
		return translations
	}

	results := make([]string, len(keywords))
	failed := make([]bool, len(keywords))

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.KeywordConcurrency)
	for i, keyword := range keywords {
		g.Go(func() error {
			translated, err := p.translateKeyword(ctx, keyword)
			if err != nil || strings.TrimSpace(translated) == "" {
				results[i] = keyword
				failed[i] = true
				return nil
			}
			results[i] = strings.TrimSpace(translated)
			return nil
		})
	}
	_ = g.Wait()

	var missed []string
	for i, keyword := range keywords {
		translations[keyword] = results[i]
		if failed[i] {
			missed = append(missed, keyword)
		}
	}
	if len(missed) > 0 {
		partial := &PartialResultError{Stage: StageKeywords, Failed: missed, Total: len(keywords)}
		log.Printf("[pipeline] %v", partial)
		p.inst.keywordFallback(ctx, len(missed))
	}
	return translations
}

func (p *Pipeline) translateKeyword(ctx context.Context, keyword string) (translated string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("keyword translation panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	ctx, end := p.inst.stage(ctx, StageKeywords)
	translated, err = p.deps.Translator.Translate(ctx, keyword)
	end(err)
	return translated, err
}

// synthesize attaches audio to the bot entry. Failure leaves the entry
// without audio and is only logged.
func (p *Pipeline) synthesize(ctx context.Context, bot chat.MessageEntry) {
	if p.deps.Synthesizer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
	defer cancel()

	ctx, end := p.inst.stage(ctx, StageSynthesis)
	clip, err := p.deps.Synthesizer.Synthesize(ctx, bot.Text)
	if err == nil && len(clip.Data) == 0 {
		err = errors.New("synthesizer returned no audio")
	}
	end(err)
	if err != nil {
		p.inst.synthesisFailed(ctx)
		log.Printf("[pipeline] %v (entry=%s)", &TransportError{Stage: StageSynthesis, Err: err}, bot.ID)
		return
	}

	ref := p.deps.Clips.Put(clip)
	if !p.deps.Store.Patch(bot.ID, history.WithAudio(ref)) {
		log.Printf("[pipeline] bot entry %s vanished before audio was attached", bot.ID)
	}
}

// await blocks until the previous turn settled. It returns false when the
// pipeline is closing.
func (p *Pipeline) await(prev <-chan struct{}) bool {
	select {
	case <-prev:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// fail aborts turn, keeping the reply order intact for later turns.
func (p *Pipeline) fail(turn *Turn, prev <-chan struct{}, err error) {
	p.await(prev)
	turn.abort(err)
	p.inst.turn(p.ctx, "aborted")
	log.Printf("[pipeline] turn aborted user=%s: %v", turn.UserEntryID(), err)
	if p.deps.OnTurnError != nil {
		p.deps.OnTurnError(turn.UserEntryID(), err)
	}
}

func (p *Pipeline) recoverTurn(turn *Turn, prev <-chan struct{}) {
	if r := recover(); r != nil {
		p.fail(turn, prev, fmt.Errorf("pipeline panic: %v", r))
	}
}
