package mlc

import (
	"fmt"
)

// DataError reports unusable input: an unreadable raster, an empty raster,
// an invalid threshold, or a seed outside the raster. It is raised before any
// region is grown.
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Reason, e.Err)
	}
	return "data error: " + e.Reason
}

func (e *DataError) Unwrap() error { return e.Err }

// DegenerateRegionError reports a region that cannot yield a usable class
// model: fewer than two pixels, or a singular covariance matrix.
type DegenerateRegionError struct {
	// Class is the index of the seed in the run, or -1 when unknown.
	Class  int
	Seed   Seed
	Pixels int
	Reason string
}

func (e *DegenerateRegionError) Error() string {
	name := ""
	if e.Seed.Name != "" {
		name = fmt.Sprintf(" %q", e.Seed.Name)
	}
	return fmt.Sprintf("degenerate region for class %d%s (seed row %d, col %d, %d pixels): %s",
		e.Class, name, e.Seed.Row, e.Seed.Col, e.Pixels, e.Reason)
}

// ClassificationError reports a non-finite log-likelihood. Row and Col are -1
// when the failure is not tied to a pixel (a class model that cannot be
// factorised).
type ClassificationError struct {
	Row, Col      int
	Class         int
	LogLikelihood float64
	Err           error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification error: class %d: %v", e.Class, e.Err)
	}
	if e.Row < 0 {
		return fmt.Sprintf("classification error: class %d log-likelihood is %v", e.Class, e.LogLikelihood)
	}
	return fmt.Sprintf("classification error at row %d, col %d: class %d log-likelihood is %v",
		e.Row, e.Col, e.Class, e.LogLikelihood)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
