package findbus

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDataset = errors.New("missing dataset")
	ErrParse          = errors.New("parse error")

	ErrNoSource          = errors.New("no source stop or route given")
	ErrUnknownTrip       = errors.New("unknown trip")
	ErrInsufficientStops = errors.New("trip has fewer than 2 stop times")
)

type LoadErrorKind int

const (
	// A dataset could not be fetched.
	MissingDataset LoadErrorKind = iota
	// A dataset was fetched but could not be decoded.
	ParseError
)

func (k LoadErrorKind) String() string {
	switch k {
	case MissingDataset:
		return "missing dataset"
	case ParseError:
		return "parse error"
	}
	return fmt.Sprintf("LoadErrorKind(%d)", int(k))
}

// LoadError aborts a load. No index is produced when one occurs.
type LoadError struct {
	Kind    LoadErrorKind
	Dataset string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Dataset, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a LoadError against ErrMissingDataset or
// ErrParse according to its Kind.
func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrMissingDataset:
		return e.Kind == MissingDataset
	case ErrParse:
		return e.Kind == ParseError
	}
	return false
}
