package embedder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/projsearch/internal/vectormath"
)

func TestProviderErrorIs(t *testing.T) {
	tests := []struct {
		kind   ErrorKind
		target error
	}{
		{KindEmptyInput, ErrEmptyInput},
		{KindUnavailable, ErrUnavailable},
		{KindEmptyResponse, ErrEmptyResponse},
		{KindTimeout, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", newError("p", tt.kind, errors.New("cause")))
			assert.True(t, errors.Is(err, tt.target))
			assert.Equal(t, tt.kind, KindOf(err))
			for _, other := range tests {
				if other.kind != tt.kind {
					assert.False(t, errors.Is(err, other.target))
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("p", context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classify("p", fmt.Errorf("api call: %w", context.DeadlineExceeded)), ErrTimeout)
	assert.ErrorIs(t, classify("p", errors.New("connection refused")), ErrUnavailable)
	assert.ErrorIs(t, classify("p", newError("p", KindEmptyResponse, nil)), ErrEmptyResponse)
}

func TestBuildSearchableText(t *testing.T) {
	tests := []struct {
		name                        string
		title, goal, keyTasks, tags string
		want                        string
	}{
		{"all fields", "T", "G", "K", "a, b", "T. G. K. Tags: a, b."},
		{"blanks skipped", "T", "  ", "", "", "T."},
		{"only tags", "", "", "", "x", "Tags: x."},
		{"nothing", "", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildSearchableText(tt.title, tt.goal, tt.keyTasks, tt.tags))
		})
	}
}

func TestLocalProvider(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()
	assert.Equal(t, LocalDimension, p.Dimension())

	t.Run("deterministic", func(t *testing.T) {
		a, err := p.Embed(ctx, "graph databases in Go")
		require.NoError(t, err)
		b, err := p.Embed(ctx, "graph databases in Go")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, LocalDimension)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		q, _ := p.Embed(ctx, "graph search")
		near, _ := p.Embed(ctx, "fast graph search engine")
		far, _ := p.Embed(ctx, "mobile banking frontend")
		assert.Less(t, vectormath.SquaredDistance(q, near), vectormath.SquaredDistance(q, far))
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := p.Embed(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyInput)

		_, err = p.EmbedBatch(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)

		_, err = p.EmbedBatch(ctx, []string{"ok", ""})
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("batch order", func(t *testing.T) {
		texts := []string{"one", "two", "three"}
		batch, err := p.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, batch, 3)
		for i, text := range texts {
			single, _ := p.Embed(ctx, text)
			assert.Equal(t, single, batch[i])
		}
	})

	t.Run("expired context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		_, err := p.Embed(ctx, "text")
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestNew(t *testing.T) {
	emb, err := New(Config{Provider: "local", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, emb.Dimension())

	emb, err = New(Config{Provider: "jina", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, JinaDimension, emb.Dimension())
	assert.Equal(t, DefaultJinaModel, emb.Model())

	_, err = New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(Config{Provider: "gpt-hal"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
