package pipeline

import (
	"context"
	"sync"
)

// Turn tracks one submitted utterance through the pipeline.
type Turn struct {
	mu          sync.Mutex
	userEntryID string
	botEntryID  string
	err         error

	replied     chan struct{}
	done        chan struct{}
	settled     chan struct{}
	replyOnce   sync.Once
	doneOnce    sync.Once
	settledOnce sync.Once
}

func newTurn() *Turn {
	return &Turn{
		replied: make(chan struct{}),
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
}

func failedTurn(err error) *Turn {
	t := newTurn()
	t.abort(err)
	return t
}

// UserEntryID is empty until the user entry has been appended.
func (t *Turn) UserEntryID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userEntryID
}

// BotEntryID is set once Replied is closed and the turn did not abort.
func (t *Turn) BotEntryID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.botEntryID
}

// Err returns the error that aborted the turn, if any.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Replied is closed when the bot entry has been appended or the turn aborted.
func (t *Turn) Replied() <-chan struct{} { return t.replied }

// Done is closed when every stage has finished, synthesis included.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait blocks until the turn is done or ctx expires.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Turn) setUserEntry(id string) {
	t.mu.Lock()
	t.userEntryID = id
	t.mu.Unlock()
}

func (t *Turn) markReplied(botID string) {
	t.mu.Lock()
	t.botEntryID = botID
	t.mu.Unlock()
	t.replyOnce.Do(func() { close(t.replied) })
}

func (t *Turn) settle() {
	t.settledOnce.Do(func() { close(t.settled) })
}

func (t *Turn) finish() {
	t.settle()
	t.replyOnce.Do(func() { close(t.replied) })
	t.doneOnce.Do(func() { close(t.done) })
}

// abort records err, keeping the first one, and closes every channel.
func (t *Turn) abort(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.finish()
}
