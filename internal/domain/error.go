package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrForbidden          = errors.New("forbidden: you do not own this resource")

	// Pipeline errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobDeleted        = errors.New("job deleted")
	ErrQueueFull         = errors.New("worker queue full")

	// Credentials and uploads
	ErrMissingAPIKey       = errors.New(MissingAPIKeyToken)
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// MissingAPIKeyToken prefixes every missing-credential error so clients can
// tell configuration problems apart from stage failures.
const MissingAPIKeyToken = "MISSING_API_KEY"

// MissingKeyError reports which provider key the user has not configured.
type MissingKeyError struct {
	Provider string // display name, e.g. "OpenRouter"
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: You must provide %s %s API key in Settings to use this tool.", MissingAPIKeyToken, article(e.Provider), e.Provider)
}

func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingAPIKey }

func article(word string) string {
	if word == "" {
		return "an"
	}
	switch word[0] {
	case 'A', 'E', 'I', 'O', 'U', 'a', 'e', 'i', 'o', 'u':
		return "an"
	}
	return "a"
}
