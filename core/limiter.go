package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExhausted is returned once an IterationBudget has been spent.
var ErrBudgetExhausted = errors.New("iteration budget exhausted")

// DefaultIterationLimit is used when a budget is created without a positive limit.
const DefaultIterationLimit = 8

// IterationBudget enforces a maximum number of reasoning iterations.
type IterationBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationBudget creates a budget allowing max iterations. A budget is
// always bounded: max <= 0 falls back to DefaultIterationLimit.
func NewIterationBudget(max int) *IterationBudget {
	if max <= 0 {
		max = DefaultIterationLimit
	}
	return &IterationBudget{max: max}
}

// Spend consumes one iteration and returns an error wrapping
// ErrBudgetExhausted if the limit has been exceeded.
func (b *IterationBudget) Spend() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.max {
		return fmt.Errorf("%w: max %d", ErrBudgetExhausted, b.max)
	}
	b.count++

	return nil
}

// Count returns the number of iterations spent.
func (b *IterationBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many iterations are left before hitting the limit.
func (b *IterationBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.max - b.count
}
