package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesProgressLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress")
	sink := NewFileSink(path)

	evt := Event{
		RunID:          "run-1",
		TS:             time.Now().UTC(),
		Stage:          StageURLDone,
		URL:            "https://example.org/issue/2",
		Processed:      7,
		RemainingDepth: 2,
	}
	require.NoError(t, sink.Consume(context.Background(), []Event{evt}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "7;2;https://example.org/issue/2", string(data))
}

func TestFileSinkUsesLastURLDoneOfBatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress")
	sink := NewFileSink(path)

	batch := []Event{
		{RunID: "r", TS: time.Now(), Stage: StageURLDone, URL: "https://example.org/1", Processed: 1},
		{RunID: "r", TS: time.Now(), Stage: StageURLDone, URL: "https://example.org/2", Processed: 2},
		{RunID: "r", TS: time.Now(), Stage: StageRunDone},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2;0;https://example.org/2", string(data))
}

func TestFileSinkSkipsBatchesWithoutURLDone(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress")
	sink := NewFileSink(path)

	batch := []Event{{RunID: "r", TS: time.Now(), Stage: StageRunStart}}
	require.NoError(t, sink.Consume(context.Background(), batch))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
