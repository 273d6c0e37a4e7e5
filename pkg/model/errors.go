package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidArgument marks client input errors. Callers at the
	// boundary map it to a 400-style response, distinct from internal
	// failures.
	ErrInvalidArgument = goerr.New("invalid argument")

	ErrInvalidInclude = goerr.New("invalid include field")
)
