package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ThrottleConfig defines per-recipient rate limits.
type ThrottleConfig struct {
	// RatePerRecipient is the sustained notifications per second allowed
	// for one recipient. Zero disables throttling.
	RatePerRecipient float64

	// Burst is the token-bucket burst size. Defaults to 1 if
	// RatePerRecipient is set but Burst is zero.
	Burst int
}

// Throttle wraps a Sender with a token bucket per recipient. Sends over
// the limit fail with ErrThrottled so the calling step can back off and
// retry. It is safe for concurrent use.
type Throttle struct {
	next Sender
	cfg  ThrottleConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle creates a Throttle in front of next.
func NewThrottle(next Sender, cfg ThrottleConfig) *Throttle {
	if cfg.RatePerRecipient > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Throttle{
		next:     next,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Send forwards n when the recipient has tokens left.
func (t *Throttle) Send(ctx context.Context, n Notification) error {
	if t.cfg.RatePerRecipient > 0 && !t.allow(n.RecipientID) {
		return ErrThrottled
	}
	return t.next.Send(ctx, n)
}

func (t *Throttle) allow(recipientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.limiters[recipientID]
	if l == nil {
		l = rate.NewLimiter(rate.Limit(t.cfg.RatePerRecipient), t.cfg.Burst)
		t.limiters[recipientID] = l
	}
	return l.Allow()
}
