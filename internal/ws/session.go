package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/kiwitu-chat/internal/hub"
	"github.com/DoyleJ11/kiwitu-chat/pkg/types"
)

var (
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	ErrHubClosed        = errors.New("hub closed the session")
	errPeerClosed       = errors.New("closed by peer")
)

// Stream is the part of *websocket.Conn a session needs.
type Stream interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Host is the authority a session reports to. *hub.Hub implements it.
type Host interface {
	Connect(ctx context.Context, out chan<- types.ServerMessage) (types.UserID, error)
	Send(m hub.Msg) bool
}

type Settings struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	WriteTimeout      time.Duration
	OutboxSize        int
}

func DefaultSettings() Settings {
	return Settings{
		HeartbeatInterval: 5 * time.Second,
		ClientTimeout:     10 * time.Second,
		WriteTimeout:      5 * time.Second,
		OutboxSize:        64,
	}
}

// Session bridges one WebSocket to the hub. It owns the stream for its
// whole life and reports exactly one Disconnect once registered.
type Session struct {
	stream Stream
	host   Host
	cfg    Settings
	log    *zap.Logger

	out          chan types.ServerMessage
	id           types.UserID
	lastActivity atomic.Int64
	pings        sync.WaitGroup
	teardownOnce sync.Once
}

func NewSession(stream Stream, host Host, cfg Settings, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultSettings().OutboxSize
	}
	return &Session{
		stream: stream,
		host:   host,
		cfg:    cfg,
		log:    log,
		out:    make(chan types.ServerMessage, cfg.OutboxSize),
	}
}

// Run registers with the host and serves the connection until it ends.
// The returned error says why; a clean close by the peer returns nil.
func (s *Session) Run(ctx context.Context) error {
	id, err := s.host.Connect(ctx, s.out)
	if err != nil {
		s.log.Warn("registration failed", zap.Error(err))
		_ = s.stream.Close(websocket.StatusTryAgainLater, "server unavailable")
		return fmt.Errorf("register: %w", err)
	}
	s.id = id
	s.log = s.log.With(zap.Uint32("user_id", uint32(id)))
	s.touch()
	s.log.Info("session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.heartbeat(gctx) })
	err = g.Wait()
	s.pings.Wait()

	s.teardown(err)
	if errors.Is(err, errPeerClosed) {
		return nil
	}
	return err
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) idle() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.stream.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.log.Debug("close frame received", zap.Error(err))
				return errPeerClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		s.touch()

		if typ != websocket.MessageBinary {
			s.log.Warn("unexpected text frame", zap.Int("bytes", len(data)))
			continue
		}

		msg, err := types.DecodeClient(data)
		if err != nil {
			s.log.Debug("undecodable frame dropped", zap.Error(err))
			continue
		}
		if !s.host.Send(hub.FromClient{ID: s.id, Msg: msg}) {
			return ErrHubClosed
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-s.out:
			if !ok {
				return ErrHubClosed
			}
			data, err := types.EncodeServer(msg)
			if err != nil {
				s.log.Error("encode failed", zap.String("kind", msg.Kind()), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err = s.stream.Write(wctx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (s *Session) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if idle := s.idle(); idle > s.cfg.ClientTimeout {
				s.log.Info("heartbeat failed", zap.Duration("idle", idle))
				return ErrHeartbeatTimeout
			}
			s.pings.Add(1)
			go func() {
				defer s.pings.Done()
				s.ping(ctx)
			}()
		}
	}
}

// ping succeeds once the pong arrives, which only happens while readLoop
// is reading.
func (s *Session) ping(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.HeartbeatInterval)
	defer cancel()
	if err := s.stream.Ping(pctx); err != nil {
		s.log.Debug("ping failed", zap.Error(err))
		return
	}
	s.touch()
}

func (s *Session) teardown(cause error) {
	s.teardownOnce.Do(func() {
		s.host.Send(hub.Disconnect{ID: s.id})

		code, reason := closeStatus(cause)
		if err := s.stream.Close(code, reason); err != nil {
			s.log.Debug("close", zap.Error(err))
		}
		s.log.Info("session ended", zap.NamedError("cause", cause))
	})
}

func closeStatus(cause error) (websocket.StatusCode, string) {
	switch {
	case cause == nil, errors.Is(cause, errPeerClosed), errors.Is(cause, context.Canceled):
		return websocket.StatusNormalClosure, ""
	case errors.Is(cause, ErrHubClosed):
		return websocket.StatusGoingAway, "server shutting down"
	case errors.Is(cause, ErrHeartbeatTimeout):
		return websocket.StatusPolicyViolation, "heartbeat timeout"
	default:
		return websocket.StatusInternalError, "connection error"
	}
}
