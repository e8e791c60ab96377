package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
)

func msgFrom(chat int64, id int) channels.Update {
	return channels.Update{Message: &channels.IncomingMessage{ID: id, ChatID: chat}}
}

func TestDispatcherPreservesPerConversationOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[int64][]int{}
	h := HandlerFunc(func(_ context.Context, u channels.Update) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[u.Message.ChatID] = append(seen[u.Message.ChatID], u.Message.ID)
		mu.Unlock()
		return nil
	})

	updates := make(chan channels.Update)
	d := NewDispatcher(Config{MaxConcurrency: 4, QueueSize: 2}, h, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), updates) }()

	for i := range 20 {
		for chat := int64(1); chat <= 3; chat++ {
			updates <- msgFrom(chat, i)
		}
	}
	close(updates)
	require.NoError(t, <-done)

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	for chat := int64(1); chat <= 3; chat++ {
		assert.Equal(t, want, seen[chat], "chat %d", chat)
	}
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	h := HandlerFunc(func(context.Context, channels.Update) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	updates := make(chan channels.Update)
	d := NewDispatcher(Config{MaxConcurrency: 2}, h, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), updates) }()

	for chat := int64(1); chat <= 10; chat++ {
		updates <- msgFrom(chat, 1)
	}
	close(updates)
	require.NoError(t, <-done)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestDispatcherSurvivesPanicsAndErrors(t *testing.T) {
	t.Parallel()

	var handled atomic.Int32
	h := HandlerFunc(func(_ context.Context, u channels.Update) error {
		handled.Add(1)
		switch u.Message.ID {
		case 1:
			panic("boom")
		case 2:
			return assert.AnError
		}
		return nil
	})

	updates := make(chan channels.Update, 3)
	updates <- msgFrom(7, 1)
	updates <- msgFrom(7, 2)
	updates <- msgFrom(7, 3)
	close(updates)

	d := NewDispatcher(DefaultConfig(), h, nil)
	require.NoError(t, d.Run(context.Background(), updates))
	assert.Equal(t, int32(3), handled.Load())
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, _ channels.Update) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	updates := make(chan channels.Update)
	d := NewDispatcher(DefaultConfig(), h, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, updates) }()

	updates <- msgFrom(1, 1)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	close(block)
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(context.Context, channels.Update) error { return nil })
	d := NewDispatcher(Config{IdleTimeout: 20 * time.Millisecond}, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Dispatch(ctx, msgFrom(1, 1))
	d.Dispatch(ctx, msgFrom(2, 1))

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.workers) == 0
	}, 2*time.Second, 10*time.Millisecond)
	d.Wait()

	// A retired conversation gets a fresh worker.
	d.Dispatch(ctx, msgFrom(1, 2))
	cancel()
	d.Wait()
}

func TestDispatcherSlowConversationDoesNotStallOthers(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	other := make(chan struct{})
	var slowHandled atomic.Int32
	h := HandlerFunc(func(ctx context.Context, u channels.Update) error {
		if u.Message.ChatID == 1 {
			select {
			case <-block:
			case <-ctx.Done():
			}
			slowHandled.Add(1)
			return nil
		}
		close(other)
		return nil
	})

	updates := make(chan channels.Update)
	d := NewDispatcher(Config{MaxConcurrency: 2, QueueSize: 2}, h, nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), updates) }()

	for i := range 5 {
		updates <- msgFrom(1, i)
	}
	select {
	case updates <- msgFrom(2, 1):
	case <-time.After(time.Second):
		t.Fatal("update for another conversation was not accepted")
	}
	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("other conversation was not handled")
	}

	close(block)
	close(updates)
	require.NoError(t, <-done)
	assert.Equal(t, int32(5), slowHandled.Load())
}
