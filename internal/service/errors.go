package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("admin privileges required")
	ErrConflict      = errors.New("request already in progress")
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrPartialWrite means the document write succeeded but a companion
	// write did not; the document is not rolled back.
	ErrPartialWrite = errors.New("document saved but companion write failed")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}
