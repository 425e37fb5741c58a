package service

import (
	"errors"

	"golang.org/x/sync/semaphore"
)

// returned by a tick that found the guard held by another tick
var ErrTickInProgress = errors.New("another tick is in progress")

// Guard is a single permit shared by the sync loops so at most one tick runs
// at a time across all of them
type Guard struct {
	sem *semaphore.Weighted
}

func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the permit without blocking, reporting whether it did
func (g *Guard) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

func (g *Guard) Release() {
	g.sem.Release(1)
}
