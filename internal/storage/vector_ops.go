package storage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"
)

// ErrInvalidVector is returned when a persisted vector cannot be parsed
var ErrInvalidVector = errors.New("invalid vector literal")

// FormatVector renders a vector in the bracketed text form "[0.1,0.2,0.3]".
// A nil or empty vector formats as the empty string, which is stored as NULL.
func FormatVector(vec []float32) string {
	if len(vec) == 0 {
		return ""
	}
	return pgvector.NewVector(vec).String()
}

// ParseVector parses the bracketed text form. Whitespace is ignored. An empty
// string or "[]" yields a nil vector (no embedding).
func ParseVector(s string) ([]float32, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" || s == "[]" {
		return nil, nil
	}
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: missing brackets", ErrInvalidVector)
	}

	var v pgvector.Vector
	if err := v.Scan(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVector, err)
	}
	vec := v.Slice()
	for i, x := range vec {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", ErrInvalidVector, i)
		}
	}
	return vec, nil
}

// nullVector converts a vector to a value suitable for the nullable
// embedding column
func nullVector(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	return FormatVector(vec)
}
