package protocol

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

const waitFor = 5 * time.Second

func TestLocalChannelDefersReplies(t *testing.T) {
	a, b := NewLocalPair()
	var trace []string
	b.Handle(func(e Envelope) {
		trace = append(trace, "b:"+e.Subject)
		if e.Subject == SubjectStart {
			require.NoError(t, b.Send(Envelope{Subject: SubjectReady}))
			trace = append(trace, "b:replied")
		}
	})
	a.Handle(func(e Envelope) {
		trace = append(trace, "a:"+e.Subject)
		require.NoError(t, a.Send(Envelope{Subject: SubjectStop}))
	})

	require.NoError(t, a.Send(Envelope{Subject: SubjectStart}))
	// a was idle, so the reply ran at once; b was busy, so a's reply waited.
	assert.Equal(t, []string{"b:start", "a:ready", "b:replied", "b:stop"}, trace)
}

func TestEnvelopesBeforeHandleAreHeld(t *testing.T) {
	for name, pair := range map[string]func() (Channel, Channel){
		"local":  func() (Channel, Channel) { return NewLocalPair() },
		"worker": func() (Channel, Channel) { return NewWorkerPair(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			a, b := pair()
			defer a.Close()
			defer b.Close()
			for _, s := range []string{SubjectKeyDown, SubjectKeyUp, SubjectWheel} {
				require.NoError(t, a.Send(Envelope{Subject: s}))
			}
			got := &collector{}
			b.Handle(got.handle)
			require.Eventually(t, func() bool { return got.len() == 3 }, waitFor, time.Millisecond)
			assert.Equal(t, []string{SubjectKeyDown, SubjectKeyUp, SubjectWheel}, got.subjects())
		})
	}
}

func TestClosedChannelsRefuseSends(t *testing.T) {
	la, lb := NewLocalPair()
	require.NoError(t, lb.Close())
	assert.ErrorIs(t, la.Send(Envelope{Subject: SubjectStart}), ErrClosed)
	assert.ErrorIs(t, lb.Send(Envelope{Subject: SubjectStart}), ErrClosed)

	wa, wb := NewWorkerPair(nil)
	require.NoError(t, wa.Close())
	require.NoError(t, wa.Close())
	assert.ErrorIs(t, wb.Send(Envelope{Subject: SubjectStart}), ErrClosed)
	assert.ErrorIs(t, wa.Send(Envelope{Subject: SubjectStart}), ErrClosed)
	require.NoError(t, wb.Close())
}

func TestNewPairPicksAnImplementation(t *testing.T) {
	a, b := NewPair(PairLocal, nil)
	assert.IsType(t, &LocalChannel{}, a)
	assert.IsType(t, &LocalChannel{}, b)

	a, b = NewPair(PairWorker, nil)
	assert.IsType(t, &WorkerChannel{}, a)
	_ = a.Close()
	_ = b.Close()

	a, b = NewPair(PairAuto, nil)
	defer a.Close()
	defer b.Close()
	got := &collector{}
	b.Handle(got.handle)
	require.NoError(t, a.Send(Envelope{Subject: SubjectStart}))
	require.Eventually(t, func() bool { return got.len() == 1 }, waitFor, time.Millisecond)
}

func TestCodecRejectsFramesWithoutSubject(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`{"data": 1}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)
	_, err = JSONCodec{}.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	e, err := JSONCodec{}.Decode([]byte(`{"subject": "stop", "data": null}`))
	require.NoError(t, err)
	assert.Equal(t, Envelope{Subject: SubjectStop}, e)
}

func TestDecodeConvertsPayloads(t *testing.T) {
	typed := Envelope{Subject: SubjectTouchStart, Data: TouchEvent{ID: 2, X: 0.5}}
	got, err := Decode[TouchEvent](typed)
	require.NoError(t, err)
	assert.Equal(t, TouchEvent{ID: 2, X: 0.5}, got)

	raw := Envelope{Subject: SubjectTouchStart, Data: json.RawMessage(`{"id": 3, "y": -1}`)}
	got, err = Decode[TouchEvent](raw)
	require.NoError(t, err)
	assert.Equal(t, TouchEvent{ID: 3, Y: -1}, got)

	loose := Envelope{Subject: SubjectTouchStart, Data: map[string]any{"id": 4}}
	got, err = Decode[TouchEvent](loose)
	require.NoError(t, err)
	assert.Equal(t, 4, got.ID)

	_, err = Decode[TouchEvent](Envelope{Subject: SubjectTouchStart, Data: json.RawMessage(`[1]`)})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func streamPair(t *testing.T) (*StreamChannel, *StreamChannel) {
	t.Helper()
	c1, c2 := net.Pipe()
	a, b := NewStreamChannel(c1, nil), NewStreamChannel(c2, nil)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestStreamChannelCarriesJSON(t *testing.T) {
	a, b := streamPair(t)
	got := &collector{}
	b.Handle(got.handle)

	require.NoError(t, a.Send(Envelope{Subject: SubjectSetControls, Data: Controls{Forward: 1, Jump: true}}))
	require.NoError(t, a.Send(Envelope{Subject: SubjectStop}))
	require.Eventually(t, func() bool { return got.len() == 2 }, waitFor, time.Millisecond)

	got.mu.Lock()
	first, second := got.got[0], got.got[1]
	got.mu.Unlock()
	assert.IsType(t, json.RawMessage{}, first.Data)
	controls, err := Decode[Controls](first)
	require.NoError(t, err)
	assert.Equal(t, Controls{Forward: 1, Jump: true}, controls)
	assert.Nil(t, second.Data)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send(Envelope{Subject: SubjectStop}), ErrClosed)
	select {
	case <-b.Done():
	case <-time.After(waitFor):
		t.Fatal("peer read loop did not stop")
	}
}

func TestStreamChannelDropsOversizedFrames(t *testing.T) {
	logger, logs := log.NewObserved(log.LevelError)
	c1, c2 := net.Pipe()
	defer c1.Close()
	ch := NewStreamChannel(c2, logger, WithMaxFrameSize(16))

	go func() { _ = WriteFrame(c1, make([]byte, 64)) }()
	select {
	case <-ch.Done():
	case <-time.After(waitFor):
		t.Fatal("oversized frame did not close the channel")
	}
	require.Equal(t, 1, logs.Len())
	assert.ErrorIs(t, ch.Send(Envelope{Subject: SubjectStop}), ErrClosed)

	big := Envelope{Subject: SubjectKeyDown, Data: KeyEvent{Code: strings.Repeat("x", 64)}}
	c3, c4 := net.Pipe()
	defer c4.Close()
	small := NewStreamChannel(c3, nil, WithMaxFrameSize(16))
	defer small.Close()
	assert.ErrorIs(t, small.Send(big), ErrFrameTooLarge)
}

func TestWebSocketChannel(t *testing.T) {
	accepted := make(chan *WebSocketChannel, 1)
	srv := httptest.NewServer(WebSocketHandler(nil, func(c *WebSocketChannel) { accepted <- c }))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var server *WebSocketChannel
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("no websocket accepted")
	}
	defer server.Close()

	got := &collector{}
	server.Handle(got.handle)
	require.NoError(t, client.Send(Envelope{Subject: SubjectPointerDown, Data: PointerEvent{Button: 1, X: 0.25}}))
	require.Eventually(t, func() bool { return got.len() == 1 }, waitFor, time.Millisecond)
	ev, err := Decode[PointerEvent](got.got[0])
	require.NoError(t, err)
	assert.Equal(t, PointerEvent{Button: 1, X: 0.25}, ev)

	back := &collector{}
	client.Handle(back.handle)
	require.NoError(t, server.Send(Envelope{Subject: SubjectReady}))
	require.Eventually(t, func() bool { return back.len() == 1 }, waitFor, time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case <-server.Done():
	case <-time.After(waitFor):
		t.Fatal("server did not observe close")
	}
}

func TestQUICStreamChannel(t *testing.T) {
	serverTLS, err := SelfSignedTLS()
	require.NoError(t, err)
	ln, err := ListenQUIC("127.0.0.1:0", serverTLS, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	accepted := make(chan *StreamChannel, 1)
	go func() {
		ch, err := ln.Accept(ctx)
		if err == nil {
			accepted <- ch
		}
	}()

	client, err := DialQUIC(ctx, ln.Addr().String(), ClientTLS(), nil)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Send(Envelope{Subject: SubjectReady}))

	var server *StreamChannel
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("no quic channel accepted")
	}
	defer server.Close()

	got := &collector{}
	server.Handle(got.handle)
	require.NoError(t, client.Send(Envelope{Subject: SubjectWheel, Data: WheelEvent{DeltaY: -3}}))
	require.Eventually(t, func() bool { return got.len() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{SubjectReady, SubjectWheel}, got.subjects())

	back := &collector{}
	client.Handle(back.handle)
	require.NoError(t, server.Send(Envelope{Subject: SubjectStart}))
	require.Eventually(t, func() bool { return back.len() == 1 }, waitFor, time.Millisecond)
}

func TestSceneSyncOverStreamChannel(t *testing.T) {
	ca, cb := streamPair(t)
	authorityBus, mirrorBus := NewBus(ca, nil), NewBus(cb, nil)

	mirror := scene.NewMirror(scene.NewDocument())
	var mu sync.Mutex
	var applyErr error
	mirrorBus.HandleDefault(func(e Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if mirror.Handles(e.Subject) && applyErr == nil {
			applyErr = mirror.Apply(e.Subject, e.Data)
		}
	})
	authorityBus.Listen()
	mirrorBus.Listen()

	doc := scene.NewDocument()
	graph := scene.NewGraph(doc, authorityBus)
	parent := doc.CreateNode("parent")
	parent.SetTranslation([3]float32{1, 0, 0})
	child := doc.CreateNode("child")
	child.SetCollider(&scene.Collider{Type: scene.ColliderSphere, Radius: 0.5})
	parent.AddChild(child)
	require.NoError(t, graph.ProcessChanges())
	assert.Positive(t, authorityBus.Pending(), "nothing leaves before the mirror is ready")

	require.NoError(t, mirrorBus.Announce())
	child.SetTranslation([3]float32{0, 1, 0})
	require.NoError(t, graph.ProcessChanges())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if applyErr != nil {
			return true
		}
		patch, err := scene.Compare(graph.Registries(), mirror.Registries())
		return err == nil && len(patch) == 0
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, applyErr)
	roots := mirror.Document().Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, [3]float32{1, 1, 0}, roots[0].Children()[0].WorldTranslation())
}
