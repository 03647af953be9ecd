package clusterio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFormat(t *testing.T) {
	var buf bytes.Buffer
	c := cluster.FromSets([]uint64{9, 3, 4}, []uint64{1})
	require.NoError(t, Write(&buf, c))
	assert.Equal(t, "3 4 9\n1\n", buf.String())
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 2 3\n\n  4\t5 \n6\n"), 0o644))

	c, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, [][]uint64{{1, 2, 3}, {4, 5}, {6}}, c.Sets())
}

func TestReadRejectsBadID(t *testing.T) {
	_, err := Read(strings.NewReader("1 2\n3 x\n"))
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteReadPreservesClusters(t *testing.T) {
	c := cluster.FromSets([]uint64{10, 20}, []uint64{5}, []uint64{1, 2, 3})
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, c))
	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, c.Sets(), got.Sets())
}
