package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder produces deterministic embeddings without network access.
type hashEmbedder struct{}

func (hashEmbedder) Dimension() int { return 4 }

func (hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, c := range text {
		v[i%4] += float32(c) / 1000
	}
	return v, nil
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retrieval.db")
	s, err := NewStore(path, hashEmbedder{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAndQuery(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "kb-1", "the sweeper runs every ten minutes"))
	require.NoError(t, s.Add(ctx, "kb-1", "sessions are keyed by profile id"))

	result, err := s.Query(ctx, "how often does the sweeper run", "kb-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Context)
}

func TestStore_QueryUnknownIdentifierMisses(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "kb-1", "some content"))

	result, err := s.Query(ctx, "anything", "kb-other")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Context)
}

func TestStore_AddValidation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	assert.Error(t, s.Add(ctx, "", "content"))
	assert.Error(t, s.Add(ctx, "kb-1", ""))
}
