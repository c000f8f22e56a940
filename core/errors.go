package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the design engine.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	UnsupportedMedia
	InvalidImage
	UploadFailed
	PersistenceFailure
	StorageUnavailable
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedMedia:
		return "unsupported media"
	case InvalidImage:
		return "invalid image"
	case UploadFailed:
		return "upload failed"
	case PersistenceFailure:
		return "persistence failure"
	case StorageUnavailable:
		return "storage unavailable"
	case NotFound:
		return "not found"
	}
	return "unknown error"
}

// Error is a classified error. Two Errors match under errors.Is when their
// kinds are equal, so the sentinels below can be used as targets.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	ErrUnsupportedMedia   = &Error{Kind: UnsupportedMedia}
	ErrInvalidImage       = &Error{Kind: InvalidImage}
	ErrUploadFailed       = &Error{Kind: UploadFailed}
	ErrPersistenceFailure = &Error{Kind: PersistenceFailure}
	ErrStorageUnavailable = &Error{Kind: StorageUnavailable}
	ErrNotFound           = &Error{Kind: NotFound}
)

// E builds an Error.
func E(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
