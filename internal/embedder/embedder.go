package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies provider failures
type ErrorKind int

const (
	KindEmptyInput ErrorKind = iota + 1
	KindUnavailable
	KindEmptyResponse
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindEmptyInput:
		return "empty_input"
	case KindUnavailable:
		return "unavailable"
	case KindEmptyResponse:
		return "empty_response"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against a *ProviderError of the same kind
var (
	ErrEmptyInput    = errors.New("embedding input is empty")
	ErrUnavailable   = errors.New("embedding provider unavailable")
	ErrEmptyResponse = errors.New("embedding provider returned no vectors")
	ErrTimeout       = errors.New("embedding provider timed out")
)

// Configuration errors
var (
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrNoAPIKey            = errors.New("embedding API key not configured")
)

// ProviderError is returned by every Embedder method on failure
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers can write errors.Is(err, ErrTimeout)
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrEmptyInput:
		return e.Kind == KindEmptyInput
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrEmptyResponse:
		return e.Kind == KindEmptyResponse
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// KindOf returns the kind of a provider error, or 0 if err is not one
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

func newError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// classify wraps a transport-level failure as Timeout or Unavailable
func classify(provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(provider, KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(provider, KindTimeout, err)
	}
	return newError(provider, KindUnavailable, err)
}

// Embedder turns text into embedding vectors
type Embedder interface {
	// Embed returns the vector for one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// validateText rejects blank input
func validateText(provider, text string) error {
	if strings.TrimSpace(text) == "" {
		return newError(provider, KindEmptyInput, nil)
	}
	return nil
}

// validateBatch rejects an empty batch or any blank element
func validateBatch(provider string, texts []string) error {
	if len(texts) == 0 {
		return newError(provider, KindEmptyInput, errors.New("no texts provided"))
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return newError(provider, KindEmptyInput, fmt.Errorf("text at index %d is empty", i))
		}
	}
	return nil
}
