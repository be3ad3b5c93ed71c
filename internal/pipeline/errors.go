package pipeline

import "fmt"

// StepError reports the query step a run failed on.
type StepError struct {
	Index   int
	Table   string
	Adapter string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("query %d (%s on adapter %s): %v", e.Index, e.Table, e.Adapter, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
