package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a rename session.
type ErrorKind int

const (
	KindNoCapableProvider ErrorKind = iota + 1
	KindFetchFailed
	KindNothingToRename
	KindRenameFailed
	KindNothingRenamed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoCapableProvider:
		return "no_capable_provider"
	case KindFetchFailed:
		return "fetch_failed"
	case KindNothingToRename:
		return "nothing_to_rename"
	case KindRenameFailed:
		return "rename_failed"
	case KindNothingRenamed:
		return "nothing_renamed"
	default:
		return "unknown"
	}
}

func (k ErrorKind) message() string {
	switch k {
	case KindNoCapableProvider:
		return "No active language server with rename capability"
	case KindFetchFailed:
		return "Error while finding references"
	case KindNothingToRename:
		return "Nothing to rename"
	case KindRenameFailed:
		return "Error while renaming"
	case KindNothingRenamed:
		return "Nothing renamed"
	default:
		return "Rename error"
	}
}

// RenameError is the error type surfaced to users. Two RenameErrors match
// under errors.Is when their kinds are equal.
type RenameError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RenameError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.message()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RenameError) Unwrap() error { return e.Err }

func (e *RenameError) Is(target error) bool {
	t, ok := target.(*RenameError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoCapableProvider = &RenameError{Kind: KindNoCapableProvider}
	ErrFetchFailed       = &RenameError{Kind: KindFetchFailed}
	ErrNothingToRename   = &RenameError{Kind: KindNothingToRename}
	ErrRenameFailed      = &RenameError{Kind: KindRenameFailed}
	ErrNothingRenamed    = &RenameError{Kind: KindNothingRenamed}
)

func newError(kind ErrorKind, err error) *RenameError {
	return &RenameError{Kind: kind, Err: err}
}

// asRenameError converts err into a RenameError. Errors that already carry
// a kind keep it; anything else is wrapped with fallback.
func asRenameError(err error, fallback ErrorKind) *RenameError {
	var re *RenameError
	if !errors.As(err, &re) {
		return newError(fallback, err)
	}
	if re == err {
		return re
	}
	return &RenameError{Kind: re.Kind, Message: err.Error()}
}
