// Package lock serializes garbage collection passes, either within one
// process or across every process sharing a Redis instance.
package lock

import (
	"context"
	"sync"
)

// LocalLocker is an in-process, non-blocking mutex.
type LocalLocker struct {
	mu sync.Mutex
}

// NewLocalLocker returns an unlocked LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// TryLock acquires the lock if it is free.
func (l *LocalLocker) TryLock(_ context.Context) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}
