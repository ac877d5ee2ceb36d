package runner

import "errors"

var (
	ErrStopped     = errors.New("runner stopped")
	ErrQueueFull   = errors.New("runner queue full")
	ErrOverlapSkip = errors.New("run skipped due to overlap policy")
)
