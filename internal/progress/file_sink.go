package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink rewrites the progress file after each processed URL. The format
// is one line, "<processed_count>;<remaining_depth>;<current_url>", replaced
// atomically so a reader never sees a torn write.
type FileSink struct {
	path string
}

// NewFileSink targets the progress file path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Consume writes the last URL_DONE event of the batch; intermediate states
// within one batch are superseded anyway.
func (s *FileSink) Consume(_ context.Context, batch []Event) error {
	for i := len(batch) - 1; i >= 0; i-- {
		evt := batch[i]
		if evt.Stage != StageURLDone {
			continue
		}
		return s.write(evt)
	}
	return nil
}

func (s *FileSink) write(evt Event) error {
	line := fmt.Sprintf("%d;%d;%s", evt.Processed, evt.RemainingDepth, evt.URL)
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create progress temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close progress file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename progress file into place: %w", err)
	}
	return nil
}

// Close removes nothing; the final state stays on disk for post-run triage.
func (s *FileSink) Close(context.Context) error { return nil }
