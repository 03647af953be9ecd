package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "run", "r-1")
	hctx, hash := StartChildSpan(ctx, "hash")
	_, inner := StartChildSpan(hctx, "drain")
	_, band := StartChildSpan(ctx, "band")
	band.SetAttr("buckets", 12)

	inner.End()
	hash.End()
	band.End()
	assert.GreaterOrEqual(t, root.End(), hash.Duration)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "r-1", inner.RunID)
	assert.Same(t, inner, hash.Children[0])
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestSpanWithoutParent(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.RunID)
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestSpanLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, root := StartSpan(context.Background(), "run", "r-2")
	_, child := StartChildSpan(ctx, "cluster")
	child.SetAttr("clusters", 3)
	child.End()
	root.End()
	root.Log(logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=run")
	assert.Contains(t, lines[1], "span=cluster")
	assert.Contains(t, lines[1], "clusters=3")
	assert.Contains(t, lines[1], "depth=1")
}
