package types

import "errors"

// Domain errors for type validation
var (
	ErrUnknownStatus     = errors.New("unknown project status")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrUnknownRole       = errors.New("unknown role")

	// Paging errors
	ErrInvalidPage     = errors.New("page must be >= 0")
	ErrInvalidPageSize = errors.New("page size must be > 0")
	ErrPageOverflow    = errors.New("page contains more items than page size")
)
