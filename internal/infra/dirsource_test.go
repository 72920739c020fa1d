package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFrameDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), []byte{byte(i)}, 0600)
		require.NoError(t, err)
	}
	return dir
}

func TestDirectorySource_CyclesInOrder(t *testing.T) {
	dir := writeFrameDir(t, "b.jpg", "a.jpg", "c.png", "notes.txt")
	src := NewDirectorySource(dir, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))

	var got []byte
	for i := 0; i < 4; i++ {
		frame, err := src.Grab(ctx)
		require.NoError(t, err)
		require.Len(t, frame.Data, 1)
		got = append(got, frame.Data[0])
		assert.Equal(t, uint64(i+1), frame.Seq)
	}

	// a.jpg, b.jpg, c.png sorted, then wraps; notes.txt ignored.
	assert.Equal(t, []byte{1, 0, 2, 1}, got)
}

func TestDirectorySource_EmptyDir(t *testing.T) {
	src := NewDirectorySource(t.TempDir(), zap.NewNop())
	err := src.Start(context.Background())
	assert.ErrorContains(t, err, "no images found")
}

func TestDirectorySource_GrabBeforeStart(t *testing.T) {
	dir := writeFrameDir(t, "a.jpg")
	src := NewDirectorySource(dir, zap.NewNop())

	_, err := src.Grab(context.Background())
	assert.Error(t, err)
}

func TestDirectorySource_GrabCanceledContext(t *testing.T) {
	dir := writeFrameDir(t, "a.jpg")
	src := NewDirectorySource(dir, zap.NewNop())
	require.NoError(t, src.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Grab(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectorySource_StopThenRestart(t *testing.T) {
	dir := writeFrameDir(t, "a.jpg")
	src := NewDirectorySource(dir, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	require.NoError(t, src.Stop())

	_, err := src.Grab(ctx)
	require.Error(t, err)

	require.NoError(t, src.Start(ctx))
	_, err = src.Grab(ctx)
	assert.NoError(t, err)
}
