package contracts

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindFormat       ErrorKind = "format"
	KindAssembly     ErrorKind = "assembly"
	KindCollaborator ErrorKind = "collaborator"
	// KindCanceled: the caller's context ended the conversion.
	KindCanceled ErrorKind = "canceled"
)

// NoPage marks an error that is not tied to a single page.
const NoPage = -1

type Error struct {
	Kind  ErrorKind
	Stage string
	Page  int
	Err   error
}

func NewError(kind ErrorKind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Page: NoPage, Err: err}
}

func NewPageError(kind ErrorKind, stage string, page int, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Page: page, Err: err}
}

func (e *Error) Error() string {
	if e.Page != NoPage {
		return fmt.Sprintf("%s error: page %d: %v", e.Kind, e.Page, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
