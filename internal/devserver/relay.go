package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/kimk1029/policevsthieves/internal/protocol"
)

func handleRelay(logger *slog.Logger, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		playerID := r.URL.Query().Get("playerId")
		if playerID == "" {
			playerID = uuid.NewString()
		}

		c := hub.register(playerID)
		defer hub.unregister(c)
		logger.Info("client connected", "playerId", playerID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			for data := range c.out {
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					cancel()
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				logger.Debug("client read ended", "playerId", playerID, "error", err)
				return
			}

			var msg protocol.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
				logger.Warn("dropping malformed frame", "playerId", playerID, "error", err)
				continue
			}
			hub.Handle(c, msg)
		}
	}
}
