package repository

import "errors"

var (
	// ErrNotFound sentinel
	ErrNotFound = errors.New("not found")
	// ErrDuplicateURL is returned by Insert when the original URL already has a row.
	ErrDuplicateURL = errors.New("original url already exists")
	// ErrDuplicateCode is returned by Insert when the short code is taken.
	ErrDuplicateCode = errors.New("short code already exists")
)
