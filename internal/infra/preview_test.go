package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietdesk/nudged/internal/domain"
)

func TestFilePreview_Publish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preview.jpg")

	sink, err := NewFilePreview(path, "")
	require.NoError(t, err)

	frame := domain.Frame{Data: []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}, Seq: 1, CapturedAt: time.Now()}
	require.NoError(t, sink.Publish(frame))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, frame.Data, data)

	// A newer frame replaces the file.
	newer := domain.Frame{Data: []byte{0xff, 0xd8, 0x02, 0xff, 0xd9}, Seq: 2, CapturedAt: time.Now()}
	require.NoError(t, sink.Publish(newer))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, newer.Data, data)
}

func TestFilePreview_EmptyFrame(t *testing.T) {
	sink, err := NewFilePreview(filepath.Join(t.TempDir(), "preview.jpg"), "")
	require.NoError(t, err)
	assert.Error(t, sink.Publish(domain.Frame{}))
}

func TestFilePreview_ArchivesFrames(t *testing.T) {
	dir := t.TempDir()
	framesDir := filepath.Join(dir, "frames")

	sink, err := NewFilePreview(filepath.Join(dir, "preview.jpg"), framesDir)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Publish(domain.Frame{Data: []byte{0x01}, Seq: 42, CapturedAt: at}))
	require.NoError(t, sink.Publish(domain.Frame{Data: []byte{0x02}, Seq: 43, CapturedAt: at.Add(time.Second)}))

	entries, err := os.ReadDir(framesDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Name(), "frame_20240501_090000_000042")
}

func TestFilePreview_NoArchiveWithoutDir(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFilePreview(filepath.Join(dir, "preview.jpg"), "")
	require.NoError(t, err)

	require.NoError(t, sink.Publish(domain.Frame{Data: []byte{0x01}, Seq: 1, CapturedAt: time.Now()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // just preview.jpg
}
