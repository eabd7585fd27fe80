package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/kiwitu-chat/internal/engine"
	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return nil // unreachable
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message within %v, but got: %#v", within, m)
	case <-time.After(within):
	}
}

func newTestHub(t *testing.T, opts ...engine.Option) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, engine.NewState(opts...), WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

type client struct {
	id  types.UserID
	out chan types.ServerMessage
}

// join connects a client and drains its Welcome and Connected echo.
func join(t *testing.T, h *Hub) client {
	t.Helper()
	out := make(chan types.ServerMessage, 16)
	id, err := h.Connect(context.Background(), out)
	require.NoError(t, err)

	welcome, ok := recvMsg(t, out, time.Second).(types.Welcome)
	require.True(t, ok, "want Welcome first")
	require.Equal(t, id, welcome.ID)
	require.Equal(t, types.Connected{User: types.UserBrief{ID: id, Name: engine.GuestName(id)}}, recvMsg(t, out, time.Second))
	return client{id: id, out: out}
}

func TestHub_ConnectAnnouncesToEveryone(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)
	b := join(t, h)

	assert.Equal(t, types.Connected{User: types.UserBrief{ID: b.id, Name: engine.GuestName(b.id)}}, recvMsg(t, a.out, time.Second))

	v, err := h.View(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Users, 2)
}

func TestHub_DisconnectTwiceBroadcastsOnce(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)
	b := join(t, h)
	_ = recvMsg(t, a.out, time.Second) // Connected{b}

	require.True(t, h.Send(Disconnect{ID: b.id}))
	require.True(t, h.Send(Disconnect{ID: b.id}))

	assert.Equal(t, types.Disconnected{ID: b.id}, recvMsg(t, a.out, time.Second))
	recvNoMsg(t, a.out, 100*time.Millisecond)

	v, err := h.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.UserBrief{{ID: a.id, Name: engine.GuestName(a.id)}}, v.Users)
}

func TestHub_ScopedBroadcast(t *testing.T) {
	h := newTestHub(t)
	s := join(t, h)
	tt := join(t, h)
	u := join(t, h)
	_ = recvMsg(t, s.out, time.Second)  // Connected{tt}
	_ = recvMsg(t, s.out, time.Second)  // Connected{u}
	_ = recvMsg(t, tt.out, time.Second) // Connected{u}

	h.Send(FromClient{ID: s.id, Msg: types.CreateRoom{Title: "den"}})
	ready, ok := recvMsg(t, s.out, time.Second).(types.ReadyJoin)
	require.True(t, ok)
	for _, c := range []client{s, tt, u} {
		assert.Equal(t, types.NewRoom{Room: ready.Room.Brief()}, recvMsg(t, c.out, time.Second))
	}

	h.Send(FromClient{ID: tt.id, Msg: types.JoinRoom{Room: ready.Room.ID}})
	_ = recvMsg(t, tt.out, time.Second) // ReadyJoin
	for _, c := range []client{s, tt} {
		assert.Equal(t, types.Alert{Type: types.AlertJoin, User: tt.id}, recvMsg(t, c.out, time.Second))
		_ = recvMsg(t, c.out, time.Second) // RoomUpdate
	}

	h.Send(FromClient{ID: s.id, Msg: types.Chat{Text: "in here"}})
	want := types.ChatMessage{From: s.id, Text: "in here"}
	assert.Equal(t, want, recvMsg(t, s.out, time.Second))
	assert.Equal(t, want, recvMsg(t, tt.out, time.Second))
	recvNoMsg(t, u.out, 100*time.Millisecond)

	v, err := h.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[types.UserID]types.RoomID{s.id: ready.Room.ID, tt.id: ready.Room.ID}, v.Membership)
}

func TestHub_WhisperToUnknownTarget(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)
	ghost := types.UserID(engine.UserSpace - 1)
	require.NotEqual(t, a.id, ghost)

	h.Send(FromClient{ID: a.id, Msg: types.Chat{Text: "hi", To: &ghost}})
	assert.Equal(t, types.Alert{Type: types.AlertTargetNotFound}, recvMsg(t, a.out, time.Second))
	recvNoMsg(t, a.out, 100*time.Millisecond)
}

func TestHub_StuckOutboxNeverBlocksTheLoop(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)

	// nobody ever reads this one
	stuck := make(chan types.ServerMessage)
	stuckID, err := h.Connect(context.Background(), stuck)
	require.NoError(t, err)
	_ = recvMsg(t, a.out, time.Second) // Connected{stuck}

	for range 10 {
		h.Send(FromClient{ID: a.id, Msg: types.Chat{Text: "spam"}})
	}
	for range 10 {
		assert.Equal(t, types.ChatMessage{From: a.id, Text: "spam"}, recvMsg(t, a.out, time.Second))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.View(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Users, 2)

	h.Send(Disconnect{ID: stuckID})
	assert.Equal(t, types.Disconnected{ID: stuckID}, recvMsg(t, a.out, time.Second))
}

func TestHub_ConnectRefusedWhenIdentitiesRunOut(t *testing.T) {
	h := newTestHub(t, engine.WithUserLimit(1))
	join(t, h)

	_, err := h.Connect(context.Background(), make(chan types.ServerMessage, 4))
	require.ErrorIs(t, err, engine.ErrIdentitiesExhausted)
}

func TestHub_ShutdownClosesOutboxes(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)

	h.Shutdown()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}

	_, ok := <-a.out
	assert.False(t, ok, "outbox should be closed on shutdown")
	assert.False(t, h.Send(Disconnect{ID: a.id}))

	_, err := h.Connect(context.Background(), make(chan types.ServerMessage, 1))
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.View(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestHub_ConnectHonoursCallerContext(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Connect(ctx, make(chan types.ServerMessage, 4))
	require.ErrorIs(t, err, context.Canceled)

	// Whether or not the hub saw the request, no session may be left behind.
	require.Eventually(t, func() bool {
		v, err := h.View(context.Background())
		return err == nil && len(v.Users) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHub_UnreadRepliesNeverStallTheLoop(t *testing.T) {
	h := newTestHub(t)
	a := join(t, h)

	// unbuffered and never read
	h.Inbox() <- GetState{Reply: make(chan View)}
	h.Inbox() <- Connect{Outbox: make(chan types.ServerMessage, 4), Reply: make(chan ConnectResult)}

	// the orphaned session is announced and then rolled back
	joined, ok := recvMsg(t, a.out, time.Second).(types.Connected)
	require.True(t, ok, "want Connected for the orphan")
	assert.Equal(t, types.Disconnected{ID: joined.User.ID}, recvMsg(t, a.out, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.UserBrief{{ID: a.id, Name: engine.GuestName(a.id)}}, v.Users)
}
