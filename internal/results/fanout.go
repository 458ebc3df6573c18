package results

import (
	"context"
	"errors"
	"fmt"

	"duel-arena/internal/match"
)

// Fanout hands each result to every sink in order. One failing sink does
// not stop the others.
type Fanout []match.ResultSink

// RecordResult implements match.ResultSink.
func (f Fanout) RecordResult(ctx context.Context, r match.Result) error {
	var errs []error
	for k, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.RecordResult(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
