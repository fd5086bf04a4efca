package refresh

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const DefaultCooldown = 5 * time.Minute

var ErrCooldown = errors.New("manual refresh cooldown")

// CooldownError reports a rejected forced refresh and the wait left.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %ds left", ErrCooldown, e.Seconds())
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// Seconds is the remaining wait rounded up to whole seconds.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

type cooldownKey struct {
	user int64
	date string
}

// Cooldown rate-limits forced refreshes per user and date.
type Cooldown struct {
	window time.Duration

	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Cooldown{window: window, last: map[cooldownKey]time.Time{}}
}

func (c *Cooldown) Window() time.Duration { return c.window }

// Check reports whether user may force a refresh of date at now, and if
// not, how long remains.
func (c *Cooldown) Check(user int64, date string, now time.Time) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[cooldownKey{user, date}]
	if !ok {
		return true, 0
	}
	elapsed := now.Sub(last)
	if elapsed >= c.window {
		return true, 0
	}
	return false, c.window - elapsed
}

func (c *Cooldown) Mark(user int64, date string, now time.Time) {
	c.mu.Lock()
	c.last[cooldownKey{user, date}] = now
	c.mu.Unlock()
}

// Prune forgets marks whose window has passed.
func (c *Cooldown) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, t := range c.last {
		if now.Sub(t) >= c.window {
			delete(c.last, k)
			n++
		}
	}
	return n
}
