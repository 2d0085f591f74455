// Package progress carries harvest progress events from the dispatcher to
// observers: the structured log, and the progress file an operator's watch
// script tails during long crawls.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageURLDone  Stage = "URL_DONE"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event captures one milestone of a harvest run.
type Event struct {
	// RunID identifies the harvest run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone kind.
	Stage Stage
	// Journal names the journal being harvested.
	Journal string
	// URL is the page just processed, for URL_DONE events.
	URL string
	// Processed counts URLs handled so far in this run.
	Processed int
	// RemainingDepth is the crawl depth still available at this URL; zero
	// for direct and feed harvests.
	RemainingDepth int
	// Records counts generated records so far.
	Records int
	// PreviouslyDelivered counts dedup skips so far.
	PreviouslyDelivered int
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageURLDone:
		if e.URL == "" {
			return errors.New("url done requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
