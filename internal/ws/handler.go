// Package ws adapts WebSocket connections to the hub protocol.
package ws

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type HandlerConfig struct {
	Session        Settings
	ReadLimit      int64
	OriginPatterns []string
}

func Handler(h Host, cfg HandlerConfig, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		connLog := log.With(zap.String("conn_id", uuid.NewString()), zap.String("remote", r.RemoteAddr))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			// Accept has already written the HTTP error.
			connLog.Warn("upgrade failed", zap.Error(err))
			return
		}
		if cfg.ReadLimit > 0 {
			conn.SetReadLimit(cfg.ReadLimit)
		}

		sess := NewSession(conn, h, cfg.Session, connLog)
		if err := sess.Run(r.Context()); err != nil && !errors.Is(err, ErrHeartbeatTimeout) {
			connLog.Debug("session error", zap.Error(err))
		}
	}
}
