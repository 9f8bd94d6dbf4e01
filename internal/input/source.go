package input

import "context"

// Source yields the raw log lines of one analysis run.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string
	// Lines returns every line available from the source. It may return
	// lines together with an error when only part of the input was read.
	Lines(ctx context.Context) ([]string, error)
}
