package validator

import "context"

// step is one completed reversible action.
type step struct {
	desc string
	undo func(ctx context.Context) error
}

// Ledger records completed reversible actions so a single cleanup
// routine can unwind them in reverse order. It generalizes cleanly if
// more attach-like steps are added later.
type Ledger struct {
	steps []step
}

// Record appends a completed action and its undo.
func (l *Ledger) Record(desc string, undo func(ctx context.Context) error) {
	l.steps = append(l.steps, step{desc: desc, undo: undo})
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int { return len(l.steps) }

// Unwind runs every undo in reverse order, continuing past failures.
// It returns the description and error of each failed undo.
func (l *Ledger) Unwind(ctx context.Context) []UndoFailure {
	var failures []UndoFailure
	for i := len(l.steps) - 1; i >= 0; i-- {
		s := l.steps[i]
		if err := s.undo(ctx); err != nil {
			failures = append(failures, UndoFailure{Step: s.desc, Err: err})
		}
	}
	l.steps = nil
	return failures
}

// UndoFailure reports one cleanup step that could not be reversed.
type UndoFailure struct {
	Step string
	Err  error
}
