package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/weft/internal/domain"
)

func TestManager_BroadcastReachesHandler(t *testing.T) {
	m := NewManager(2, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var seen int64
	m.On(domain.EventNodeCompleted, func(e domain.Event) {
		atomic.AddInt64(&seen, 1)
	})

	require.NoError(t, m.Broadcast(domain.Event{
		Type:        domain.EventNodeCompleted,
		ExecutionID: "exec-1",
		Timestamp:   time.Now(),
	}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&seen) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManager_HandlerOnlySeesItsEventType(t *testing.T) {
	m := NewManager(1, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var started, completed int64
	m.On(domain.EventNodeStarted, func(e domain.Event) { atomic.AddInt64(&started, 1) })
	m.On(domain.EventNodeCompleted, func(e domain.Event) { atomic.AddInt64(&completed, 1) })

	m.Broadcast(domain.Event{Type: domain.EventNodeStarted, ExecutionID: "exec-1"})
	m.Broadcast(domain.Event{Type: domain.EventNodeStarted, ExecutionID: "exec-1"})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&started) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&completed))
}

func TestManager_OffRemovesHandler(t *testing.T) {
	m := NewManager(1, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var seen int64
	id := m.On(domain.EventProgress, func(e domain.Event) { atomic.AddInt64(&seen, 1) })
	m.Off(id)

	m.Broadcast(domain.Event{Type: domain.EventProgress})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int64(0), atomic.LoadInt64(&seen))
}

func TestManager_ChannelSubscription(t *testing.T) {
	m := NewManager(1, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ch, cleanup, err := m.SubscribeToChannel(domain.EventWorkflowCompleted)
	require.NoError(t, err)
	defer cleanup()

	m.Broadcast(domain.Event{Type: domain.EventWorkflowCompleted, WorkflowID: "wf-1"})

	select {
	case event := <-ch:
		assert.Equal(t, "wf-1", event.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestManager_BroadcastBeforeStartFails(t *testing.T) {
	m := NewManager(1, nil)

	err := m.Broadcast(domain.Event{Type: domain.EventProgress})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestManager_PanickingHandlerDoesNotKillWorker(t *testing.T) {
	m := NewManager(1, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var seen int64
	m.On(domain.EventProgress, func(e domain.Event) { panic("boom") })
	m.On(domain.EventProgress, func(e domain.Event) { atomic.AddInt64(&seen, 1) })

	m.Broadcast(domain.Event{Type: domain.EventProgress})
	m.Broadcast(domain.Event{Type: domain.EventProgress})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&seen) == 2
	}, time.Second, 10*time.Millisecond)
}
