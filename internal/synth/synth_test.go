package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawShape(t *testing.T) {
	c := Draw(Config{Documents: 10, Clusters: 3, Features: 5, Noise: 2, Seed: 1})

	require.Len(t, c.Documents, 10)
	assert.Equal(t, uint64(1), c.Documents[0].ID)
	for _, d := range c.Documents {
		assert.Len(t, d.Tokens, 7)
	}
	assert.Equal(t, 1, c.Labels[1])
	assert.Equal(t, 2, c.Labels[2])
	assert.Equal(t, 1, c.Labels[4])
}

func TestDrawIsSeeded(t *testing.T) {
	cfg := Config{Documents: 20, Clusters: 2, Features: 10, Noise: 3, DropRate: 0.2, Seed: 9}
	assert.Equal(t, Draw(cfg), Draw(cfg))
}
