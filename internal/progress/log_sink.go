package progress

import (
	"context"

	"go.uber.org/zap"
)

// LogSink emits structured logs for progress streams, useful during
// development and audits.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.logger.Info("harvest progress",
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("journal", evt.Journal),
			zap.String("url", evt.URL),
			zap.Int("processed", evt.Processed),
			zap.Int("remaining_depth", evt.RemainingDepth),
			zap.Int("records", evt.Records),
			zap.Int("previously_delivered", evt.PreviouslyDelivered),
			zap.String("note", evt.Note))
	}
	return nil
}

// Close implements Sink.
func (s *LogSink) Close(context.Context) error { return nil }
