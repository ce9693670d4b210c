package meter

import "time"

// timedMutex is a mutex whose Lock gives up after a timeout.
type timedMutex chan struct{}

func newTimedMutex() timedMutex { return make(timedMutex, 1) }

func (m timedMutex) lock(timeout time.Duration) bool {
	select {
	case m <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (m timedMutex) unlock() { <-m }
