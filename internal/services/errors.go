package services

import "errors"

var (
	// ErrInvalidInput covers missing/malformed identity or email. 4xx.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLinkDenied covers every token failure: not found, expired, used.
	// Handlers render one generic message for all of them so the response
	// never leaks which case it was.
	ErrLinkDenied = errors.New("link invalid or expired")
)
