package mq

import "context"

// TokenLimiter bounds how many holders may run at once. Each holder occupies
// one slot in a buffered channel; a full channel means no capacity left.
type TokenLimiter struct {
	slots chan struct{}
}

// NewTokenLimiter returns a limiter with size slots (at least one).
func NewTokenLimiter(size int) *TokenLimiter {
	return &TokenLimiter{slots: make(chan struct{}, max(size, 1))}
}

// Acquire takes a slot, waiting until one frees up or ctx is done. A free
// slot is taken even when ctx is already canceled.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Releasing with nothing held is a no-op.
func (l *TokenLimiter) Release() {
	select {
	case <-l.slots:
	default:
	}
}

func (l *TokenLimiter) Capacity() int { return cap(l.slots) }

// InUse reports the number of held slots.
func (l *TokenLimiter) InUse() int { return len(l.slots) }

func (l *TokenLimiter) Available() int { return cap(l.slots) - len(l.slots) }
