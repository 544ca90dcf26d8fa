package session

import "context"

// Pending tracks one background recognition
type Pending struct {
	generation uint64
	done       chan struct{}
	err        error
}

func newPending(generation uint64) *Pending {
	return &Pending{generation: generation, done: make(chan struct{})}
}

// Generation is the session generation the recognition belongs to
func (p *Pending) Generation() uint64 {
	return p.generation
}

// Done is closed once the result was applied or discarded
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until recognition finishes. It returns the recognition error,
// ErrStale if the result was discarded, or ctx's error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
