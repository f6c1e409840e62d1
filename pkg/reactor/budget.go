package reactor

import "fmt"

// DefaultMaxFlushPasses bounds how many times a single flush may swap its
// queue before giving up. Reactions that keep re-triggering each other hit
// this limit instead of spinning forever.
const DefaultMaxFlushPasses = 100

// flushBudget tracks limits for one flush.
// A zero limit means unlimited.
type flushBudget struct {
	maxPasses int
	maxRuns   int

	passes int
	runs   int
}

// reset clears the per-flush counters.
func (b *flushBudget) reset() {
	b.passes = 0
	b.runs = 0
}

// checkPass is called before each pass.
func (b *flushBudget) checkPass() error {
	if b.maxPasses > 0 && b.passes >= b.maxPasses {
		return fmt.Errorf("%w: more than %d passes", ErrFlushLimit, b.maxPasses)
	}
	b.passes++
	return nil
}

// checkRun is called before each reaction run.
func (b *flushBudget) checkRun() error {
	if b.maxRuns > 0 && b.runs >= b.maxRuns {
		return fmt.Errorf("%w: more than %d reaction runs", ErrFlushLimit, b.maxRuns)
	}
	b.runs++
	return nil
}

// BudgetStats reports the counters of the last completed flush.
type BudgetStats struct {
	Passes int
	Runs   int
}
