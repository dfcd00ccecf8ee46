package trial

import "sync"

// Budget is the shared counter of remaining fidelity-units for a run. It only
// ever decreases; once a debit is refused, every later debit is refused too.
type Budget struct {
	mu        sync.Mutex
	total     float64
	remaining float64
}

// NewBudget returns a budget holding the given total fidelity-units.
func NewBudget(total float64) *Budget {
	return &Budget{total: total, remaining: total}
}

// TryDebit atomically deducts cost from the remaining budget and reports
// whether the deduction was admitted. A dispatch whose cost exceeds the
// remaining budget is refused and the budget is left untouched.
func (b *Budget) TryDebit(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cost > b.remaining {
		return false
	}
	b.remaining -= cost
	return true
}

// Remaining returns the fidelity-units not yet committed.
func (b *Budget) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Spent returns the fidelity-units committed so far.
func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total - b.remaining
}

// Total returns the configured total budget.
func (b *Budget) Total() float64 { return b.total }
