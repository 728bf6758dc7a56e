package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

func TestIndexRememberAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(HashEmbedding(128), "")
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Remember(ctx, "bot-1", []ports.Message{
		{Role: ports.RoleUser, Content: "my cat is called Miso"},
		{Role: ports.RoleTool, Content: "ignored"},
		{Role: ports.RoleAssistant, Content: "Miso is a lovely name for a cat"},
	}))
	require.NoError(t, idx.Remember(ctx, "bot-1", []ports.Message{
		{Role: ports.RoleUser, Content: "the deploy pipeline failed on staging"},
	}))
	require.NoError(t, idx.Remember(ctx, "bot-1", []ports.Message{{Role: ports.RoleTool, Content: "only tools"}}))
	assert.Equal(t, 2, idx.Count())

	hits, err = idx.Search(ctx, "what is my cat called", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Contains(t, hits[0].Content, "Miso")
	assert.NotContains(t, hits[0].Content, "ignored")
	assert.Equal(t, "bot-1", hits[0].Bot)
	assert.False(t, hits[0].CreatedAt.IsZero())
}

func TestNewEmbeddingFunc(t *testing.T) {
	_, err := NewEmbeddingFunc(EmbeddingConfig{Provider: "openai"})
	require.Error(t, err)
	_, err = NewEmbeddingFunc(EmbeddingConfig{Provider: "nope"})
	require.Error(t, err)

	fn, err := NewEmbeddingFunc(EmbeddingConfig{})
	require.NoError(t, err)
	v, err := fn(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 256)
}
