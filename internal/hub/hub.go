// Package hub runs the single authority goroutine. Every session and room
// mutation happens inside Hub.loop, one inbox message at a time.
package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/kiwitu-chat/internal/engine"
	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

var ErrClosed = errors.New("hub closed")

const DefaultInboxSize = 64

type Msg interface{ isHubMsg() }

// Connect registers a connection. Outbox is where the hub pushes messages
// for the new session. Reply must be buffered; the hub never waits on it.
type Connect struct {
	Outbox chan<- types.ServerMessage
	Reply  chan ConnectResult
}

type ConnectResult struct {
	ID  types.UserID
	Err error
}

type Disconnect struct {
	ID types.UserID
}

type FromClient struct {
	ID  types.UserID
	Msg types.ClientMessage
}

// GetState asks for a View. Reply must be buffered.
type GetState struct {
	Reply chan View
}

type ShutdownHub struct{}

func (Connect) isHubMsg()     {}
func (Disconnect) isHubMsg()  {}
func (FromClient) isHubMsg()  {}
func (GetState) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

// View is a copy of the authority state, safe to read outside the loop.
type View struct {
	Users      []types.UserBrief
	Rooms      []types.Room
	Membership map[types.UserID]types.RoomID
}

type Hub struct {
	inbox    chan Msg
	state    *engine.State
	outboxes map[types.UserID]chan<- types.ServerMessage
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func WithInboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.inbox = make(chan Msg, n)
		}
	}
}

func NewHub(parent context.Context, state *engine.State, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if state == nil {
		state = engine.NewState()
	}
	h := &Hub{
		inbox:    make(chan Msg, DefaultInboxSize),
		state:    state,
		outboxes: make(map[types.UserID]chan<- types.ServerMessage),
		log:      zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Send queues m for the loop. It blocks while the inbox is full and
// reports false once the hub has stopped.
func (h *Hub) Send(m Msg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Connect registers out and waits for the assigned identity.
func (h *Hub) Connect(ctx context.Context, out chan<- types.ServerMessage) (types.UserID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if h.ctx.Err() != nil {
		return 0, ErrClosed
	}
	reply := make(chan ConnectResult, 1)
	select {
	case h.inbox <- Connect{Outbox: out, Reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.ctx.Done():
		return 0, ErrClosed
	}

	select {
	case res := <-reply:
		return res.ID, res.Err
	case <-h.ctx.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		// The hub may still register us; make sure that session goes away.
		go func() {
			select {
			case res := <-reply:
				if res.Err == nil {
					h.Send(Disconnect{ID: res.ID})
				}
			case <-h.ctx.Done():
			}
		}()
		return 0, ctx.Err()
	}
}

func (h *Hub) View(ctx context.Context) (View, error) {
	if h.ctx.Err() != nil {
		return View{}, ErrClosed
	}
	reply := make(chan View, 1)
	select {
	case h.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.ctx.Done():
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.ctx.Done():
		return View{}, ErrClosed
	}
}

// Shutdown asks the loop to close every outbox and stop. It does not wait;
// use Done for that.
func (h *Hub) Shutdown() {
	h.Send(ShutdownHub{})
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				h.handleConnect(msg)

			case Disconnect:
				h.handleDisconnect(msg.ID)

			case FromClient:
				ds, err := h.state.Apply(msg.ID, msg.Msg)
				if err != nil {
					h.log.Debug("request rejected",
						zap.Uint32("user_id", uint32(msg.ID)),
						zap.String("kind", kindOf(msg.Msg)),
						zap.Error(err))
					break
				}
				h.deliver(ds)

			case GetState:
				select {
				case msg.Reply <- h.view():
				default:
					h.log.Debug("state reply dropped: nobody waiting")
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// Replies never block the loop. A Connect whose reply nobody is waiting for
// is rolled back so the session cannot linger without an owner.
func (h *Hub) handleConnect(msg Connect) {
	sess, ds, err := h.state.Connect()
	if err != nil {
		h.log.Warn("connect refused", zap.Error(err))
		select {
		case msg.Reply <- ConnectResult{Err: err}:
		default:
		}
		return
	}
	h.outboxes[sess.ID] = msg.Outbox
	h.log.Info("user joined",
		zap.Uint32("user_id", uint32(sess.ID)),
		zap.String("name", sess.Name),
		zap.Int("users", len(h.state.Sessions)))
	h.deliver(ds)

	select {
	case msg.Reply <- ConnectResult{ID: sess.ID}:
	default:
		h.log.Warn("connect reply dropped: nobody waiting", zap.Uint32("user_id", uint32(sess.ID)))
		h.handleDisconnect(sess.ID)
	}
}

func (h *Hub) handleDisconnect(id types.UserID) {
	ds, err := h.state.Disconnect(id)
	if err != nil {
		// Already gone: the handler and a timeout can both report it.
		h.log.Debug("disconnect ignored", zap.Uint32("user_id", uint32(id)), zap.Error(err))
		return
	}
	delete(h.outboxes, id)
	h.log.Info("user left", zap.Uint32("user_id", uint32(id)), zap.Int("users", len(h.state.Sessions)))
	h.deliver(ds)
}

// deliver pushes without waiting. A missing or full outbox loses the message.
func (h *Hub) deliver(ds []engine.Delivery) {
	for _, d := range ds {
		ch, ok := h.outboxes[d.To]
		if !ok {
			h.log.Debug("no outbox", zap.Uint32("user_id", uint32(d.To)), zap.String("kind", d.Msg.Kind()))
			continue
		}
		select {
		case ch <- d.Msg:
		default:
			h.log.Debug("outbox full, message dropped", zap.Uint32("user_id", uint32(d.To)), zap.String("kind", d.Msg.Kind()))
		}
	}
}

func (h *Hub) view() View {
	v := View{
		Users:      make([]types.UserBrief, 0, len(h.state.Sessions)),
		Rooms:      make([]types.Room, 0, len(h.state.Rooms)),
		Membership: make(map[types.UserID]types.RoomID),
	}
	for _, id := range sortedKeys(h.state.Sessions) {
		sess := h.state.Sessions[id]
		v.Users = append(v.Users, sess.Brief())
		if sess.Room != nil {
			v.Membership[id] = *sess.Room
		}
	}
	for _, id := range sortedKeys(h.state.Rooms) {
		v.Rooms = append(v.Rooms, h.state.Rooms[id].Full())
	}
	return v
}

func (h *Hub) shutdown() {
	for id, ch := range h.outboxes {
		close(ch) // tell the session no more messages are coming
		delete(h.outboxes, id)
	}
	h.state = engine.NewState()
	h.cancel()
	h.log.Info("hub stopped")
}

func kindOf(m types.ClientMessage) string {
	if m == nil {
		return "nil"
	}
	return m.Kind()
}
