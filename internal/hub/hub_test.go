package hub

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPublishIncrementsVersion(t *testing.T) {
	h := New(nil)

	if h.Version() != 0 {
		t.Fatalf("fresh hub version = %d, want 0", h.Version())
	}
	if h.Ready() {
		t.Fatal("fresh hub reports ready")
	}

	for i := 1; i <= 5; i++ {
		h.Publish([]byte{byte(i)})
		if got := h.Version(); got != uint64(i) {
			t.Fatalf("version after publish %d = %d, want %d", i, got, i)
		}
	}
	if !h.Ready() {
		t.Fatal("hub not ready after publish")
	}
}

func TestWaitReturnsExistingFrameImmediately(t *testing.T) {
	h := New(nil)
	h.Publish([]byte("frameA"))

	frame, version, timedOut, err := h.WaitForNewer(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if timedOut {
		t.Fatal("timed out with a frame available")
	}
	if version != 1 || !bytes.Equal(frame, []byte("frameA")) {
		t.Fatalf("got (%q, %d), want (frameA, 1)", frame, version)
	}

	h.Publish([]byte("frameB"))
	frame, version, timedOut, err = h.WaitForNewer(context.Background(), 1, time.Second)
	if err != nil || timedOut {
		t.Fatalf("unexpected result: timedOut=%v err=%v", timedOut, err)
	}
	if version != 2 || !bytes.Equal(frame, []byte("frameB")) {
		t.Fatalf("got (%q, %d), want (frameB, 2)", frame, version)
	}
}

func TestWaitTimesOutWithoutPublish(t *testing.T) {
	h := New(nil)
	h.Publish([]byte("frameA"))
	h.Publish([]byte("frameB"))

	start := time.Now()
	frame, version, timedOut, err := h.WaitForNewer(context.Background(), 2, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Fatal("expected timeout")
	}
	if frame != nil {
		t.Fatalf("timeout returned frame %q", frame)
	}
	if version != 2 {
		t.Fatalf("timeout version = %d, want 2", version)
	}
	if elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Fatalf("timeout took %v, want ~100ms", elapsed)
	}
}

func TestWaitWakesOnPublish(t *testing.T) {
	h := New(nil)

	done := make(chan struct{})
	var frame []byte
	var version uint64
	var timedOut bool
	var err error
	go func() {
		frame, version, timedOut, err = h.WaitForNewer(context.Background(), 0, 5*time.Second)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	h.Publish([]byte("late"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by publish")
	}
	if err != nil || timedOut {
		t.Fatalf("unexpected result: timedOut=%v err=%v", timedOut, err)
	}
	if version != 1 || !bytes.Equal(frame, []byte("late")) {
		t.Fatalf("got (%q, %d), want (late, 1)", frame, version)
	}
}

// A slow consumer that missed several publishes gets the newest frame,
// not the next one in sequence.
func TestSlowConsumerSkipsToLatest(t *testing.T) {
	h := New(nil)

	for _, f := range []string{"F1", "F2", "F3", "F4", "F5"} {
		h.Publish([]byte(f))
	}

	// Consumer last saw F1 (version 1).
	frame, version, timedOut, err := h.WaitForNewer(context.Background(), 1, time.Second)
	if err != nil || timedOut {
		t.Fatalf("unexpected result: timedOut=%v err=%v", timedOut, err)
	}
	if version != 5 || !bytes.Equal(frame, []byte("F5")) {
		t.Fatalf("got (%q, %d), want (F5, 5)", frame, version)
	}
}

func TestSnapshotConsistency(t *testing.T) {
	h := New(nil)

	// Hammer publish from one goroutine while many consumers read. Each
	// observed (frame, version) pair must match: frame i is a single
	// repeated byte equal to its version's low 8 bits.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			frame := bytes.Repeat([]byte{byte(i)}, 64)
			h.Publish(frame)
		}
		close(stop)
	}()

	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var since uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				frame, version, timedOut, err := h.WaitForNewer(context.Background(), since, 10*time.Millisecond)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if timedOut {
					continue
				}
				if version <= since {
					t.Errorf("version went backwards: %d after %d", version, since)
					return
				}
				want := byte(version)
				for _, b := range frame {
					if b != want {
						t.Errorf("torn frame: version %d contains byte %#x", version, b)
						return
					}
				}
				since = version
			}
		}()
	}
	wg.Wait()
}

func TestCloseReleasesAllWaiters(t *testing.T) {
	h := New(nil)
	h.Publish([]byte("only"))

	const waiters = 8
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, _, _, err := h.WaitForNewer(context.Background(), 1, 10*time.Second)
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	h.Close()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("waiter %d returned %v, want ErrClosed", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d not released by Close", i)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := New(nil)
	h.Close()
	h.Close()

	if _, _, _, err := h.WaitForNewer(context.Background(), 0, time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("wait on closed hub returned %v, want ErrClosed", err)
	}

	// Publish after close is dropped.
	h.Publish([]byte("x"))
	if h.Version() != 0 {
		t.Fatalf("publish after close advanced version to %d", h.Version())
	}
}

func TestWaitUnblocksOnContextCancel(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, _, err := h.WaitForNewer(ctx, 0, 10*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by context cancellation")
	}
}
