// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"errors"
	"fmt"
)

// ErrInsufficientReviews is returned under the partial policy when fewer
// specialists succeeded than the configured minimum.
var ErrInsufficientReviews = errors.New("insufficient specialist reviews")

// Stage names the leg of the pipeline an error came from.
type Stage string

const (
	StageSpecialist Stage = "specialist"
	StageAggregator Stage = "aggregator"
)

// Error reports which leg of the pipeline failed. It unwraps to the
// underlying cause, so completion errors keep their classification.
type Error struct {
	Stage   Stage
	Persona string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s review %q: %v", e.Stage, e.Persona, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
