package slotlock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSameKeySerializes(t *testing.T) {
	m := NewMutexMap()
	const workers = 32

	var inside, maxInside, total int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(context.Background(), "slot:1", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				total++
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
	if total != workers {
		t.Fatalf("critical section ran %d times, want %d", total, workers)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := NewMutexMap()
	release := make(chan struct{})
	heldA := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "slot:a", func(ctx context.Context) error {
			close(heldA)
			<-release
			return nil
		})
	}()
	<-heldA

	done := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "slot:b", func(ctx context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
	close(release)
}

func TestAcquisitionTimeout(t *testing.T) {
	m := NewMutexMap()
	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "slot:1", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	err := m.WithLock(ctx, "slot:1", func(ctx context.Context) error {
		t.Error("fn must not run after timeout")
		return nil
	})
	if err != ErrLockTimeout {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
	close(release)
}

func TestLockReleasedAfterError(t *testing.T) {
	m := NewMutexMap()
	wantErr := context.DeadlineExceeded // any sentinel will do

	if err := m.WithLock(context.Background(), "slot:1", func(ctx context.Context) error {
		return wantErr
	}); err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// The key must be reacquirable immediately.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	if err := m.WithLock(ctx, "slot:1", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("reacquire after error: %v", err)
	}
	if !ran {
		t.Fatal("critical section did not run on reacquire")
	}
}

func TestMapDoesNotLeakSlots(t *testing.T) {
	m := NewMutexMap()
	for i := 0; i < 100; i++ {
		_ = m.WithLock(context.Background(), "slot:ephemeral", func(ctx context.Context) error { return nil })
	}
	m.mu.Lock()
	n := len(m.slots)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("slot map holds %d entries after release, want 0", n)
	}
}
