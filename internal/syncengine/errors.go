package syncengine

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure. Validation and auth failures are fatal to
// the caller and never queued; network and unknown failures drive the retry
// queue. Unknown defaults to retryable so data is never dropped.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindUnknown    Kind = "unknown"
)

// SyncError carries a classification alongside the underlying cause.
type SyncError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *SyncError) Unwrap() error { return e.Err }

func Validationf(format string, args ...interface{}) error {
	return &SyncError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authf(format string, args ...interface{}) error {
	return &SyncError{Kind: KindAuth, Msg: fmt.Sprintf(format, args...)}
}

func Networkf(format string, args ...interface{}) error {
	return &SyncError{Kind: KindNetwork, Msg: fmt.Sprintf(format, args...)}
}

// WrapNetwork marks an underlying transport failure as retryable.
func WrapNetwork(msg string, err error) error {
	return &SyncError{Kind: KindNetwork, Msg: msg, Err: err}
}

func WrapAuth(msg string, err error) error {
	return &SyncError{Kind: KindAuth, Msg: msg, Err: err}
}

func WrapValidation(msg string, err error) error {
	return &SyncError{Kind: KindValidation, Msg: msg, Err: err}
}

// Classify returns the error's kind; unclassified errors are Unknown.
func Classify(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Retryable reports whether the failure should be queued for the drain
// worker rather than surfaced as fatal.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindUnknown:
		return true
	default:
		return false
	}
}
