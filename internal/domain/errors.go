package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted means every catalog row in the universe has been selected.
	ErrExhausted = errors.New("no eligible catalog rows remain")

	// ErrLookup means the expected markup was not found while enriching a
	// species. It is recoverable: the pipeline moves on to a new species.
	ErrLookup = errors.New("image lookup failed")

	// ErrSizeLimit means a media blob is larger than MaxMediaSize.
	ErrSizeLimit = errors.New("media exceeds size limit")

	// ErrAuth means the session could not be created.
	ErrAuth = errors.New("authentication failed")

	// ErrUpload means a blob upload was rejected.
	ErrUpload = errors.New("blob upload failed")

	// ErrPublish means the post record was rejected.
	ErrPublish = errors.New("publish failed")

	// ErrAttemptsExhausted means every pipeline attempt failed enrichment.
	ErrAttemptsExhausted = errors.New("maximum attempts reached")
)

// Lookup stages, in the order a deep lookup visits them.
const (
	StageProfile   = "profile"
	StagePhotoHost = "photo-host"
	StageArchive   = "archive"
	StageImage     = "image"
)

// LookupError describes where an image lookup stopped. It always matches
// ErrLookup with errors.Is.
type LookupError struct {
	Stage  string
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("lookup %s %s", e.Stage, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LookupError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLookup, e.Err}
	}
	return []error{ErrLookup}
}

// IsRecoverable reports whether err should make the pipeline discard the
// current species and try another one.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrLookup) || errors.Is(err, ErrSizeLimit)
}
