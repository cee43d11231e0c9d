// Package cacheerr defines the error taxonomy shared by the slicecache
// engine and its durable store backends. Every error surfaced by the
// public API carries a [Code] that callers can branch on via [CodeOf] or
// the Is* helpers without string matching.
package cacheerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of cache failure.
type Code string

const (
	// CodeInvalidArgument marks caller bugs (empty source id, negative
	// slice index). Never worth retrying.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeSerialization marks an entry that failed its size invariant or
	// could not be packed into a store record.
	CodeSerialization Code = "SERIALIZATION_ERROR"

	// CodeCorruptEntry marks a store record that cannot be decoded. The
	// engine treats it as a miss and purges the record.
	CodeCorruptEntry Code = "CORRUPT_ENTRY"

	// CodeQuotaExceeded means the write would exceed the configured (or
	// host-reported) budget and auto-eviction was not allowed to run.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"

	// CodeEntryTooLarge means a single entry can never fit the budget,
	// even with the cache empty.
	CodeEntryTooLarge Code = "ENTRY_TOO_LARGE"

	// CodeStorageUnavailable means the durable store itself failed.
	// Callers may retry with backoff; the cache does not retry internally.
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Error is a code-carrying error that optionally wraps a cause.
type Error struct {
	code Code
	msg  string
	err  error
}

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause. A nil cause returns nil so call
// sites can wrap unconditionally.
func Wrap(code Code, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: cause}
}

// Code returns the error's code.
func (e *Error) Code() Code { return e.code }

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// Is reports code equality so that errors.Is(err, cacheerr.New(code, ""))
// matches any error of the same code regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.code == t.code
}

// CodeOf returns the Code carried by err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// IsInvalidArgument reports whether err carries CodeInvalidArgument.
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }

// IsCorrupt reports whether err carries CodeCorruptEntry or CodeSerialization.
func IsCorrupt(err error) bool {
	c := CodeOf(err)
	return c == CodeCorruptEntry || c == CodeSerialization
}

// IsQuotaExceeded reports whether err carries CodeQuotaExceeded.
func IsQuotaExceeded(err error) bool { return CodeOf(err) == CodeQuotaExceeded }

// IsEntryTooLarge reports whether err carries CodeEntryTooLarge.
func IsEntryTooLarge(err error) bool { return CodeOf(err) == CodeEntryTooLarge }

// IsStorageUnavailable reports whether err carries CodeStorageUnavailable.
func IsStorageUnavailable(err error) bool { return CodeOf(err) == CodeStorageUnavailable }
