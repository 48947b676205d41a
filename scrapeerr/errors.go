package scrapeerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInitialization  Kind = "INITIALIZATION_ERROR"
	KindLogin           Kind = "LOGIN_ERROR"
	KindNavigation      Kind = "NAVIGATION_ERROR"
	KindScraping        Kind = "SCRAPING_ERROR"
	KindElementNotFound Kind = "ELEMENT_NOT_FOUND"
	KindTimeout         Kind = "TIMEOUT_ERROR"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its own kind.
var (
	ErrInitialization  = &Error{Kind: KindInitialization}
	ErrLogin           = &Error{Kind: KindLogin}
	ErrNavigation      = &Error{Kind: KindNavigation}
	ErrScraping        = &Error{Kind: KindScraping}
	ErrElementNotFound = &Error{Kind: KindElementNotFound}
	ErrTimeout         = &Error{Kind: KindTimeout}
)

// Error is a classified scrape failure. Cause is the underlying error, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality against a sentinel (an *Error with no message).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Initialization(message string, cause error) error {
	return New(KindInitialization, message, cause)
}

func Login(message string, cause error) error {
	return New(KindLogin, message, cause)
}

func Navigation(message string, cause error) error {
	return New(KindNavigation, message, cause)
}

func Scraping(message string, cause error) error {
	return New(KindScraping, message, cause)
}

func ElementNotFound(message string, cause error) error {
	return New(KindElementNotFound, message, cause)
}

func Timeout(message string, cause error) error {
	return New(KindTimeout, message, cause)
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
