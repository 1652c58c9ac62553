package pipeline

import (
	"errors"

	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/quality"
)

// GateDeniedError is returned by RequestGeneration when the project may not be
// generated yet. It carries the structured reason.
type GateDeniedError struct {
	Decision maturity.Decision `json:"decision"`
	// Coverage is set when the advisory coverage check denied generation.
	Coverage *quality.CoverageResult `json:"coverage,omitempty"`
}

func (e *GateDeniedError) Error() string {
	if e.Decision.Reason != "" {
		return "generation denied: " + e.Decision.Reason
	}
	return "generation denied"
}

// IsGateDenied reports whether err is a GateDeniedError.
func IsGateDenied(err error) bool {
	var ge *GateDeniedError
	return errors.As(err, &ge)
}
