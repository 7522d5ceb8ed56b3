package infer

import (
	"context"
)

// NoOp implements Service without any network traffic. It exists so that the
// whole pipeline can be exercised (and tested) without an API key: an empty
// reply makes the annotator fall back to schema defaults, exactly as it
// would on a real inference failure.
type NoOp struct {
	ModelName string
}

func (n *NoOp) Model() string {
	if n.ModelName == "" {
		return "no-ops"
	}
	return n.ModelName
}

func (n *NoOp) Infer(ctx context.Context, image []byte, prompt string) (Result, error) {
	return Result{}, nil
}
