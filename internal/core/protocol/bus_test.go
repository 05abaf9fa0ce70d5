package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// collector records inbound envelopes from any goroutine.
type collector struct {
	mu  sync.Mutex
	got []Envelope
}

func (c *collector) handle(e Envelope) {
	c.mu.Lock()
	c.got = append(c.got, e)
	c.mu.Unlock()
}

func (c *collector) subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, e := range c.got {
		out[i] = e.Subject
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func localBuses(t *testing.T) (*Bus, *Bus, *collector) {
	t.Helper()
	ca, cb := NewLocalPair()
	a, b := NewBus(ca, log.NewNop()), NewBus(cb, log.NewNop())
	received := &collector{}
	b.HandleDefault(received.handle)
	a.Listen()
	b.Listen()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b, received
}

func TestBusQueuesUntilPeerIsReady(t *testing.T) {
	a, b, received := localBuses(t)

	require.NoError(t, a.Send(SubjectStart, nil))
	require.NoError(t, a.Send(SubjectSetControls, Controls{Forward: 1}))
	require.NoError(t, a.Send(SubjectStop, nil))
	assert.Zero(t, received.len())
	assert.Equal(t, 3, a.Pending())
	assert.False(t, a.Ready())

	require.NoError(t, b.Announce())
	assert.True(t, a.Ready())
	assert.Zero(t, a.Pending())
	assert.Equal(t, []string{SubjectStart, SubjectSetControls, SubjectStop}, received.subjects())

	require.NoError(t, a.Send(SubjectRespawn, Respawn{}))
	assert.Equal(t, SubjectRespawn, received.subjects()[3], "passthrough once ready")
}

func TestReadyHandlerRunsAfterFlush(t *testing.T) {
	a, b, received := localBuses(t)
	require.NoError(t, a.Send(SubjectStart, nil))

	var seen int
	a.Handle(SubjectReady, func(Envelope) { seen = received.len() })
	require.NoError(t, b.Announce())
	assert.Equal(t, 1, seen)
}

func TestMarkReadyWithoutHandshake(t *testing.T) {
	a, _, received := localBuses(t)
	require.NoError(t, a.Send(SubjectKeyDown, KeyEvent{Code: "KeyW"}))
	require.NoError(t, a.MarkReady())
	require.NoError(t, a.MarkReady())
	assert.Equal(t, []string{SubjectKeyDown}, received.subjects())

	key, err := Decode[KeyEvent](received.got[0])
	require.NoError(t, err)
	assert.Equal(t, "KeyW", key.Code)
}

func TestUnknownSubjectsAreRejected(t *testing.T) {
	a, _, _ := localBuses(t)
	assert.ErrorIs(t, a.Send("explode", nil), ErrUnknownSubject)
	assert.Zero(t, a.Pending())
	assert.NoError(t, a.Send(scene.Subject(scene.OpCreate, scene.KindNode), nil))
}

func TestFlushKeepsSendOrderUnderConcurrentSends(t *testing.T) {
	ca, cb := NewWorkerPair(log.NewNop())
	a, b := NewBus(ca, nil), NewBus(cb, nil)
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var order []int
	b.Handle(SubjectPointerMove, func(e Envelope) {
		ev, err := Decode[PointerEvent](e)
		if err != nil {
			return
		}
		mu.Lock()
		order = append(order, ev.PointerID)
		mu.Unlock()
	})
	a.Listen()
	b.Listen()

	const total = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			_ = a.Send(SubjectPointerMove, PointerEvent{PointerID: i})
		}
	}()
	time.Sleep(time.Millisecond)
	require.NoError(t, b.Announce())
	<-done

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == total
	}, 5*time.Second, 5*time.Millisecond)
	for i, id := range order {
		require.Equal(t, i, id)
	}
}

func TestCloseDropsQueuedEnvelopes(t *testing.T) {
	logger, logs := log.NewObserved(log.LevelDebug)
	ca, _ := NewLocalPair()
	a := NewBus(ca, logger)
	require.NoError(t, a.Send(SubjectStart, nil))
	require.NoError(t, a.Close())
	assert.Zero(t, a.Pending())
	assert.Equal(t, 1, logs.FilterMessage("bus closed before peer was ready").Len())
}
