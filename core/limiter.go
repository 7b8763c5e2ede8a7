package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrModelCallBudget signals that a run has spent its model-call budget.
// The flow surfaces it to the caller instead of looping further, which
// protects a chat turn that gets stuck transferring between specialists.
var ErrModelCallBudget = errors.New("model call budget exhausted")

// ModelLimiter caps how many LLM calls a single run may make. A run that
// fans out to several specialists shares one limiter, so the cap bounds
// the whole turn and not each agent individually.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter returns a limiter allowing up to max calls.
// max == 0 disables the cap.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment records one model call. It returns ErrModelCallBudget once
// the cap is exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count++
	if ml.max > 0 && ml.count > ml.max {
		return fmt.Errorf("%w (max %d)", ErrModelCallBudget, ml.max)
	}

	return nil
}

// Count returns how many calls the run has made so far.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns the calls left before the cap, or -1 when uncapped.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1
	}

	return ml.max - ml.count
}
