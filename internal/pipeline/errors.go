package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEntryNotFound   = errors.New("message entry not found")
	ErrEmptyUtterance  = errors.New("utterance text is empty")
	ErrEmptyTranscript = errors.New("transcription returned no text")
	ErrNoTranscriber   = errors.New("transcription is not configured")
	ErrClosed          = errors.New("pipeline is closed")
)

// Stage names a suspension point of a turn.
type Stage string

const (
	StageTranscribe      Stage = "transcribe"
	StageReply           Stage = "reply"
	StageKeywords        Stage = "keywords"
	StageAppend          Stage = "append"
	StageSynthesis       Stage = "synthesis"
	StageFullTranslation Stage = "full_translation"
)

// TransportError wraps a failed call to an external service.
type TransportError struct {
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialResultError reports parallel sub-requests of which some failed
// while their siblings succeeded. It is logged, never returned to callers.
type PartialResultError struct {
	Stage  Stage
	Failed []string
	Total  int
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("%s: %d of %d requests failed (%s)", e.Stage, len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}
