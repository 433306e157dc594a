package checker

import (
	"context"
	"fmt"
	"time"
)

// TimerPauser implements Pauser with a timer, blocking only the caller.
type TimerPauser struct{}

// Pause waits for delay or until ctx ends.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
