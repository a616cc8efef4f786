package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocument is returned by Ask before any PDF was loaded.
	ErrNoDocument = errors.New("no document loaded: upload a PDF first")
	// ErrEmptyQuestion is returned by Ask for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrEmptyUpload is the cause of a LoadError for a zero-byte upload.
	ErrEmptyUpload = errors.New("uploaded file is empty")
	// ErrClosed is returned by LoadDocument once the session was reset or
	// expired.
	ErrClosed = errors.New("session closed")
)

// LoadError reports a rejected or unindexable upload.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AnswerError reports a failed call to the question answering backend.
type AnswerError struct {
	Err error
}

func (e *AnswerError) Error() string {
	return "could not generate an answer: " + e.Err.Error()
}

func (e *AnswerError) Unwrap() error { return e.Err }
