package recognition

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleStoreNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Facedata")
	store := NewSampleStore(dir)
	fixed := time.UnixMilli(1700000000000)
	store.now = func() time.Time { return fixed }

	first, err := store.Save(7, "Li Lei", []byte("one"))
	require.NoError(t, err)
	second, err := store.Save(7, "Li Lei", []byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "Li_Lei.7.1700000000000.jpg", filepath.Base(first))
	assert.Equal(t, "Li_Lei.7.1700000000001.jpg", filepath.Base(second))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestSampleNameKeepsTrainerLabelParsable(t *testing.T) {
	store := NewSampleStore(t.TempDir())
	path, err := store.Save(15, "a.b/c 李雷", pngHeader)
	require.NoError(t, err)

	parts := strings.Split(filepath.Base(path), ".")
	require.Len(t, parts, 4)
	assert.Equal(t, "a_b_c_李雷", parts[0])
	assert.Equal(t, "15", parts[1])
	assert.Equal(t, "png", parts[3])
}

func TestGatewayEnrollCommitAndDiscard(t *testing.T) {
	store := NewSampleStore(t.TempDir())
	g := NewGateway(nil, store, Options{})

	path, err := g.EnrollCommit(context.Background(), 3, "", []byte("img"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "user.3."))

	require.NoError(t, g.DiscardSample(context.Background(), path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, g.DiscardSample(context.Background(), path))

	_, err = store.Save(3, "x", nil)
	assert.Error(t, err)
}
