package triage

import (
	"errors"
	"fmt"

	"github.com/linnemanlabs/sift/internal/sentiment"
)

// Kind classifies a triage failure.
type Kind string

const (
	KindMalformedClassifierOutput Kind = "malformed_classifier_output"
	KindInvalidThreshold          Kind = "invalid_threshold"
	KindInvalidSourceKey          Kind = "invalid_source_key"
	KindUnknownPriorityTier       Kind = "unknown_priority_tier"
	KindStorageReadFailure        Kind = "storage_read_failure"
	KindStorageWriteFailure       Kind = "storage_write_failure"
	KindQueueSendFailure          Kind = "queue_send_failure"
	KindClassifierCallFailure     Kind = "classifier_call_failure"
)

// Sentinel errors, one per Kind. Match with errors.Is.
var (
	ErrMalformedClassifierOutput = sentiment.ErrMalformedOutput
	ErrInvalidThreshold          = errors.New("invalid threshold")
	ErrInvalidSourceKey          = errors.New("invalid source key")
	ErrUnknownPriorityTier       = errors.New("unknown priority tier")
	ErrStorageRead               = errors.New("storage read failed")
	ErrStorageWrite              = errors.New("storage write failed")
	ErrQueueSend                 = errors.New("queue send failed")
	ErrClassifierCall            = errors.New("classifier call failed")
)

var kindSentinels = map[Kind]error{
	KindMalformedClassifierOutput: ErrMalformedClassifierOutput,
	KindInvalidThreshold:          ErrInvalidThreshold,
	KindInvalidSourceKey:          ErrInvalidSourceKey,
	KindUnknownPriorityTier:       ErrUnknownPriorityTier,
	KindStorageReadFailure:        ErrStorageRead,
	KindStorageWriteFailure:       ErrStorageWrite,
	KindQueueSendFailure:          ErrQueueSend,
	KindClassifierCallFailure:     ErrClassifierCall,
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StageClassify   Stage = "classify"
	StageExtract    Stage = "extract"
	StagePrioritize Stage = "prioritize"
	StageBuild      Stage = "build"
	StageArchive    Stage = "archive"
	StageRoute      Stage = "route"
	StageSend       Stage = "send"
)

// Error is the failure of a single message. It carries the failed stage, the
// last state reached before the failure and the underlying cause.
type Error struct {
	Kind      Kind
	Stage     Stage
	State     State
	SourceKey string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("triage %s: %s failed in state %s: %v", e.SourceKey, e.Stage, e.State, e.Err)
}

// Unwrap exposes both the cause and the kind sentinel, so errors.Is works for
// either ErrStorageWrite or the collaborator's own error.
func (e *Error) Unwrap() []error {
	errs := []error{e.Err}
	if s, ok := kindSentinels[e.Kind]; ok && s != e.Err {
		errs = append(errs, s)
	}
	return errs
}

// Retryable reports whether redelivering the same message could succeed.
// Collaborator failures are retryable; validation failures are not.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindStorageReadFailure, KindStorageWriteFailure, KindQueueSendFailure, KindClassifierCallFailure:
		return true
	}
	return false
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
