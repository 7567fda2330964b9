package executor

import (
	"context"
	"fmt"
)

// New returns an uninitialized executor of the given type. Call Init before
// Run.
func New(t Type) (Executor, error) {
	switch t {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", t)
	}
}

// NewFromConfig creates an executor for cfg and initializes it.
func NewFromConfig(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := New(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return exec, nil
}
