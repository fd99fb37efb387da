package service

import "errors"

var (
	// ErrValidation marks input the caller must fix; it is never retried.
	ErrValidation = errors.New("invalid url")
	// ErrContention means another instance holds the creation lock for the
	// URL and no record exists yet. Retrying after a short backoff is safe.
	ErrContention = errors.New("short link for this url is being created concurrently")
	// ErrGenerationExhausted means every candidate code collided.
	ErrGenerationExhausted = errors.New("unable to generate unique short code")
	ErrNotFound            = errors.New("short link not found")
)
