package client

import (
	"context"

	"github.com/menta2k/region-console/pkg/types"
)

// InferenceClient sends one region's request to a backend.
type InferenceClient interface {
	// Validate reports configuration problems for mode before any request is made.
	Validate(mode types.Mode) error
	Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error)
}
