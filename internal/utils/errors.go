package utils

import "fmt"

// OpError carries the failing operation and the dataset it ran against.
type OpError struct {
	Op      string
	Dataset string
	Err     error
}

func (e *OpError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: dataset %s: %v", e.Op, e.Dataset, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with operation and dataset context.
func NewOpError(op, dataset string, err error) error {
	return &OpError{Op: op, Dataset: dataset, Err: err}
}
